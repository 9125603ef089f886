package worldhost

import (
	"strings"
	"testing"
)

func TestLoadExternalProxiesSplitsSelfFromRemote(t *testing.T) {
	const doc = `[
		{"latLong":[40.7,-74.0],"addr":"ny.example","baseAddr":"ny.example"},
		{"latLong":[51.5,-0.1]}
	]`
	remote, self, err := LoadExternalProxies(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(remote) != 1 || remote[0].Host != "ny.example" {
		t.Fatalf("remote = %+v", remote)
	}
	if self == nil || self.Location.Lat != 51.5 {
		t.Fatalf("self = %+v", self)
	}
}

func TestLoadExternalProxiesAppliesDefaults(t *testing.T) {
	const doc = `[{"latLong":[0,0],"addr":"a.example"}]`
	remote, _, err := LoadExternalProxies(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(remote) != 1 {
		t.Fatalf("remote = %+v", remote)
	}
	if remote[0].Port != defaultExternalProxyPort || remote[0].McPort != defaultExternalProxyMcPort {
		t.Fatalf("got port=%d mcPort=%d", remote[0].Port, remote[0].McPort)
	}
}

func TestLoadExternalProxiesRejectsMultipleSelfEntries(t *testing.T) {
	const doc = `[{"latLong":[0,0]},{"latLong":[1,1]}]`
	if _, _, err := LoadExternalProxies(strings.NewReader(doc)); err == nil {
		t.Fatal("expected an error for two entries missing addr")
	}
}

package cty

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"callparser/prefix"
)

const samplePLIST = `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
<key>K1ABC</key>
	<dict>
		<key>Country</key>
		<string>United States</string>
		<key>Prefix</key>
		<string>K</string>
		<key>ADIF</key>
		<integer>291</integer>
		<key>CQZone</key>
		<integer>4</integer>
		<key>ITUZone</key>
		<integer>7</integer>
		<key>ExactCallsign</key>
		<true/>
	</dict>
<key>K</key>
	<dict>
		<key>Country</key>
		<string>United States</string>
		<key>Prefix</key>
		<string>K</string>
		<key>ADIF</key>
		<integer>291</integer>
		<key>CQZone</key>
		<integer>5</integer>
		<key>ITUZone</key>
		<integer>8</integer>
		<key>Continent</key>
		<string>NA</string>
		<key>Latitude</key>
		<real>37.53</real>
		<key>Longitude</key>
		<real>-91.67</real>
		<key>GMTOffset</key>
		<real>5</real>
		<key>ExactCallsign</key>
		<false/>
	</dict>
<key>w6</key>
	<dict>
		<key>Country</key>
		<string>United States</string>
		<key>Prefix</key>
		<string>K</string>
		<key>ADIF</key>
		<integer>291</integer>
		<key>CQZone</key>
		<integer>3</integer>
		<key>ExactCallsign</key>
		<false/>
	</dict>
<key>EA</key>
	<dict>
		<key>Country</key>
		<string>Spain</string>
		<key>Prefix</key>
		<string>EA</string>
		<key>ADIF</key>
		<integer>281</integer>
		<key>ExactCallsign</key>
		<false/>
	</dict>
<key>FO/</key>
	<dict>
		<key>Country</key>
		<string>Slashland</string>
		<key>Prefix</key>
		<string>FO</string>
		<key>ADIF</key>
		<integer>175</integer>
		<key>ExactCallsign</key>
		<false/>
	</dict>
</dict>
</plist>`

func loadSampleGroups(t *testing.T) []prefix.Group {
	t.Helper()
	groups, err := LoadGroupsFromReader(strings.NewReader(samplePLIST))
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	return groups
}

func TestGroupsOrderedByADIF(t *testing.T) {
	groups := loadSampleGroups(t)
	var got []int
	for _, g := range groups {
		got = append(got, g.DXCC)
	}
	if !reflect.DeepEqual(got, []int{175, 281, 291}) {
		t.Fatalf("unexpected group order %v", got)
	}
}

func TestGroupsSynthesizeTopRecord(t *testing.T) {
	usa := loadSampleGroups(t)[2]
	top := usa.Records[0]
	if top.Kind != "pfDXCC" || top.MainPrefix != "K" || top.Country != "United States" {
		t.Fatalf("unexpected top record %+v", top)
	}
	if !reflect.DeepEqual(top.Masks, []string{"K", "W6"}) {
		t.Fatalf("unexpected masks %v", top.Masks)
	}
	if top.Latitude != "37.53" || top.Longitude != "-91.67" || top.TimeZone != "5" {
		t.Fatalf("unexpected coordinates %+v", top)
	}
	if !reflect.DeepEqual(top.CQ, []int{5}) || !reflect.DeepEqual(top.ITU, []int{8}) {
		t.Fatalf("expected zones from the K entry, got cq=%v itu=%v", top.CQ, top.ITU)
	}
}

func TestGroupsExactCallsBecomeStations(t *testing.T) {
	usa := loadSampleGroups(t)[2]
	if len(usa.Records) != 2 {
		t.Fatalf("expected top plus one station, got %d records", len(usa.Records))
	}
	st := usa.Records[1]
	if st.Kind != "pfStation" || st.FullPrefix != "K1ABC" || !reflect.DeepEqual(st.Masks, []string{"K1ABC"}) {
		t.Fatalf("unexpected station record %+v", st)
	}
	if !reflect.DeepEqual(st.Flags, []string{"exact"}) {
		t.Fatalf("expected station to be flagged exact, got %v", st.Flags)
	}
	if !reflect.DeepEqual(st.CQ, []int{4}) {
		t.Fatalf("expected station zone override, got %v", st.CQ)
	}
}

func TestGroupsBuildIntoIndex(t *testing.T) {
	idx := prefix.Build(loadSampleGroups(t), prefix.BuildOptions{Logf: func(string, ...any) {}})
	if ids := idx.Primary("W6"); len(ids) != 1 || idx.Entity(ids[0]).DXCC != 291 {
		t.Fatalf("expected W6 to resolve to DXCC 291, got %v", ids)
	}
	if ids := idx.Exact("K1ABC"); len(ids) != 1 || idx.Entity(ids[0]).DXCC != 291 {
		t.Fatalf("expected K1ABC exact call for DXCC 291, got %v", ids)
	}
	children := idx.Children("K1ABC")
	if len(children) != 1 || idx.Entity(children[0]).FullPrefix != "K1ABC" {
		t.Fatalf("expected K1ABC station child, got %v", children)
	}
	if ids := idx.Children("K1AB"); len(ids) != 0 {
		t.Fatalf("expected no 4-character child key for an exact call, got %v", ids)
	}
	if !idx.IsPortablePrefix("FO") {
		t.Fatalf("expected FO/ to register a portable prefix")
	}
}

func TestDecodeRejectsEmptyAndMalformed(t *testing.T) {
	empty := `<?xml version="1.0" encoding="UTF-8"?><plist version="1.0"><dict></dict></plist>`
	if _, err := LoadGroupsFromReader(strings.NewReader(empty)); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := LoadGroupsFromReader(strings.NewReader(`<?xml version="1.0" encoding="UTF-8"?><plist version="1.0"><dict><key>K</key><dict>`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestLoadGroupsMissingFile(t *testing.T) {
	if _, err := LoadGroups(t.TempDir() + "/missing.plist"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

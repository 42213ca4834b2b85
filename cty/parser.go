// Package cty converts the CTY prefix database (cty.plist) into DXCC-grouped
// prefix records ready for prefix.Build.
package cty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"callparser/prefix"

	"howett.net/plist"
)

// ErrEmpty is returned when a plist decodes to zero usable entries.
var ErrEmpty = errors.New("cty plist has no entries")

// PrefixInfo describes the metadata stored for each CTY entry.
type PrefixInfo struct {
	Country       string  `plist:"Country"`
	Prefix        string  `plist:"Prefix"`
	ADIF          int     `plist:"ADIF"`
	CQZone        int     `plist:"CQZone"`
	ITUZone       int     `plist:"ITUZone"`
	Continent     string  `plist:"Continent"`
	Latitude      float64 `plist:"Latitude"`
	Longitude     float64 `plist:"Longitude"`
	GMTOffset     float64 `plist:"GMTOffset"`
	ExactCallsign bool    `plist:"ExactCallsign"`
}

// LoadGroups loads cty.plist from path.
func LoadGroups(path string) ([]prefix.Group, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cty plist: %w", err)
	}
	defer f.Close()
	return LoadGroupsFromReader(f)
}

// LoadGroupsFromReader decodes CTY data from r and groups it by DXCC.
func LoadGroupsFromReader(r io.ReadSeeker) ([]prefix.Group, error) {
	data, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return Groups(data), nil
}

// Decode returns the raw plist entries keyed by upper-cased prefix or call.
func Decode(r io.ReadSeeker) (map[string]PrefixInfo, error) {
	var raw map[string]PrefixInfo
	decoder := plist.NewDecoder(r)
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode plist: %w", err)
	}
	data := make(map[string]PrefixInfo, len(raw))
	for k, v := range raw {
		norm := strings.ToUpper(strings.TrimSpace(k))
		if norm == "" {
			continue
		}
		data[norm] = v
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	return data, nil
}

// Purpose: Convert flat CTY entries into one group per ADIF number.
// Key aspects: Prefix keys become masks of a synthesized pfDXCC record; exact
// calls become pfStation child records flagged "exact", so they match only the
// whole call and carry their own zones. Groups are
// ordered by ADIF and masks sorted so builds are reproducible.
// Upstream: LoadGroupsFromReader, cmd/ctyimport.
// Downstream: prefix.Record.
func Groups(data map[string]PrefixInfo) []prefix.Group {
	byADIF := make(map[int][]string)
	for key, info := range data {
		byADIF[info.ADIF] = append(byADIF[info.ADIF], key)
	}
	adifs := make([]int, 0, len(byADIF))
	for adif := range byADIF {
		adifs = append(adifs, adif)
	}
	sort.Ints(adifs)

	groups := make([]prefix.Group, 0, len(adifs))
	for _, adif := range adifs {
		keys := byADIF[adif]
		sort.Slice(keys, func(i, j int) bool {
			if len(keys[i]) == len(keys[j]) {
				return keys[i] < keys[j]
			}
			return len(keys[i]) < len(keys[j])
		})
		var masks, stations []string
		for _, key := range keys {
			if data[key].ExactCallsign {
				stations = append(stations, key)
			} else {
				masks = append(masks, key)
			}
		}

		top := record(data[topKey(data, keys, masks)], "pfDXCC")
		top.Masks = append([]string(nil), masks...)
		sort.Strings(top.Masks)
		group := prefix.Group{DXCC: adif, Records: []prefix.Record{top}}
		for _, call := range stations {
			st := record(data[call], "pfStation")
			st.FullPrefix = call
			st.Flags = []string{"exact"}
			st.Masks = []string{call}
			group.Records = append(group.Records, st)
		}
		groups = append(groups, group)
	}
	return groups
}

// topKey picks the entry describing the entity itself: the key equal to its
// own Prefix field, else the shortest prefix key, else the first exact call.
func topKey(data map[string]PrefixInfo, keys, masks []string) string {
	for _, key := range masks {
		if strings.EqualFold(key, strings.TrimSpace(data[key].Prefix)) {
			return key
		}
	}
	if len(masks) > 0 {
		return masks[0]
	}
	return keys[0]
}

func record(info PrefixInfo, kind string) prefix.Record {
	main := strings.ToUpper(strings.TrimSpace(info.Prefix))
	rec := prefix.Record{
		Kind:       kind,
		MainPrefix: main,
		FullPrefix: main,
		Country:    strings.TrimSpace(info.Country),
		Continent:  strings.TrimSpace(info.Continent),
		TimeZone:   formatFloat(info.GMTOffset),
		Latitude:   formatFloat(info.Latitude),
		Longitude:  formatFloat(info.Longitude),
		DXCC:       info.ADIF,
	}
	if info.CQZone > 0 {
		rec.CQ = []int{info.CQZone}
	}
	if info.ITUZone > 0 {
		rec.ITU = []int{info.ITUZone}
	}
	return rec
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

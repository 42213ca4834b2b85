package lookup

import (
	"callparser/callstruct"
	"callparser/prefix"
)

// Hit is one resolved match. All fields are copied out of the index so a Hit
// stays valid after the index it came from is replaced.
type Hit struct {
	CallSign   string
	Kind       prefix.Kind
	MainPrefix string
	FullPrefix string
	Country    string
	Province   string
	City       string
	Admin1     string
	Admin2     string
	Continent  string
	TimeZone   string
	Latitude   string
	Longitude  string
	Grid       string
	DXCC       int
	WAE        int
	CQ         []int
	ITU        []int
	IOTA       string
	StartDate  string
	EndDate    string
	Flags      prefix.Flag
	Structure  callstruct.Structure
	// Refined marks a hit produced from a child entity (province, station).
	Refined     bool
	IsMergedHit bool
	DXCCMerged  []int
}

func newHit(call string, ent *prefix.Entity, structure callstruct.Structure, refined bool) Hit {
	return Hit{
		CallSign:   call,
		Kind:       ent.Kind,
		MainPrefix: ent.MainPrefix,
		FullPrefix: ent.FullPrefix,
		Country:    ent.Country,
		Province:   ent.Province,
		City:       ent.City,
		Admin1:     ent.Admin1,
		Admin2:     ent.Admin2,
		Continent:  ent.Continent,
		TimeZone:   ent.TimeZone,
		Latitude:   ent.Latitude,
		Longitude:  ent.Longitude,
		Grid:       gridFor(ent.Latitude, ent.Longitude),
		DXCC:       ent.DXCC,
		WAE:        ent.WAE,
		CQ:         append([]int(nil), ent.CQ...),
		ITU:        append([]int(nil), ent.ITU...),
		IOTA:       ent.IOTA,
		StartDate:  ent.StartDate,
		EndDate:    ent.EndDate,
		Flags:      ent.Flags,
		Structure:  structure,
		Refined:    refined,
	}
}

func gridFor(lat, lon string) string {
	grid, _ := prefix.GridFromText(lat, lon)
	return grid
}

func (h Hit) clone() Hit {
	h.CQ = append([]int(nil), h.CQ...)
	h.ITU = append([]int(nil), h.ITU...)
	h.DXCCMerged = append([]int(nil), h.DXCCMerged...)
	return h
}

func cloneHits(hits []Hit) []Hit {
	if hits == nil {
		return nil
	}
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = h.clone()
	}
	return out
}

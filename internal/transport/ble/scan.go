package ble

import (
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/nerrad567/poweredup/internal/hub"
)

// identify turns an advert into a discovered hub. Adverts without LEGO
// manufacturer data or with an unknown system type are ignored.
func identify(name, address string, rssi int16, mfr []bluetooth.ManufacturerDataElement) (hub.Discovered, bool) {
	for _, el := range mfr {
		if el.CompanyID != hub.LEGOManufacturerID {
			continue
		}
		kind, ok := hub.IdentifyKind(el.Data)
		if !ok {
			return hub.Discovered{}, false
		}
		return hub.Discovered{Kind: kind, Address: address, Name: name, RSSI: rssi}, true
	}
	return hub.Discovered{}, false
}

// scanSet collects matching hubs during one scan, keeping one entry per
// address updated with the latest advert.
type scanSet struct {
	mu     sync.Mutex
	filter hub.Filter
	index  map[string]int
	found  []hub.Discovered
}

func newScanSet(filter hub.Filter) *scanSet {
	return &scanSet{filter: filter, index: make(map[string]int)}
}

// add records d if it passes the filter and reports whether the scan can
// stop early.
func (s *scanSet) add(d hub.Discovered) bool {
	if !s.filter.Matches(d) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[d.Address]; ok {
		// Scan responses often carry the name the first advert lacked.
		if d.Name == "" {
			d.Name = s.found[i].Name
		}
		s.found[i] = d
	} else {
		s.index[d.Address] = len(s.found)
		s.found = append(s.found, d)
	}
	return s.filter.Specific()
}

func (s *scanSet) results() []hub.Discovered {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]hub.Discovered(nil), s.found...)
}

package recordstore

import "github.com/starford/gleaner/internal/models"

// Stats summarizes the collection. It is computed on every call.
type Stats struct {
	Total      int                 `json:"total"`
	PerKind    map[models.Kind]int `json:"per_kind"`
	PerChannel map[string]int      `json:"per_channel"`
}

// Stats counts records by kind and by channel.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Total:      len(s.records),
		PerKind:    make(map[models.Kind]int),
		PerChannel: make(map[string]int),
	}
	for _, r := range s.records {
		st.PerKind[r.Kind]++
		st.PerChannel[r.Channel]++
	}
	return st
}

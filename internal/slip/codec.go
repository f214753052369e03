package slip

import (
	"encoding/json"

	"github.com/cypherlabdev/bet-engine-service/internal/models"
)

// MarshalJSON encodes the slip as its list of entries.
func (s Slip) MarshalJSON() ([]byte, error) {
	entries := s.entries
	if entries == nil {
		entries = []models.SlipEntry{}
	}
	return json.Marshal(entries)
}

// UnmarshalJSON decodes a list of entries, dropping repeated ids.
func (s *Slip) UnmarshalJSON(data []byte) error {
	var entries []models.SlipEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*s = New(entries...)
	return nil
}

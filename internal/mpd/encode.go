package mpd

import (
	"encoding/json"
	"fmt"
)

// Encoder is anything that serializes one value per call, such as
// *json.Encoder or *yaml.Encoder.
type Encoder interface {
	Encode(v any) error
}

// outputRecord is the structured form of an Output. Field order is part of
// the output format.
type outputRecord struct {
	Name    string `json:"name" yaml:"name"`
	ID      uint   `json:"id" yaml:"id"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

func (o *Output) record() outputRecord {
	return outputRecord{
		Name:    o.Name(),
		ID:      o.ID(),
		Enabled: o.Enabled(),
	}
}

func (o *Output) String() string {
	return fmt.Sprintf("Output{name: %q, id: %d, enabled: %t}", o.Name(), o.ID(), o.Enabled())
}

// MarshalJSON implements json.Marshaler
func (o *Output) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.record())
}

// MarshalYAML implements yaml.Marshaler
func (o *Output) MarshalYAML() (any, error) {
	return o.record(), nil
}

// Encode writes the output as a single record
func (o *Output) Encode(enc Encoder) error {
	return enc.Encode(o.record())
}

// Encode writes the set as one ordered sequence of records
func (s Outputs) Encode(enc Encoder) error {
	records := make([]outputRecord, 0, len(s))
	for _, o := range s {
		records = append(records, o.record())
	}
	return enc.Encode(records)
}

// EncodeOutputs drains l and writes its outputs as one ordered sequence. Each
// output is released as soon as it is recorded. Nothing is written if the
// enumeration fails.
func EncodeOutputs(enc Encoder, l *OutputList) error {
	records := []outputRecord{}
	for o, err := range l.All() {
		if err != nil {
			return err
		}
		records = append(records, o.record())
		o.Close()
	}
	return enc.Encode(records)
}

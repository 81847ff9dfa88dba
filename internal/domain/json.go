package domain

import (
	"encoding/json"
	"reflect"
	"strings"
)

// knownFields returns the JSON keys declared on a struct type.
func knownFields(t reflect.Type) map[string]struct{} {
	keys := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		if name := strings.Split(tag, ",")[0]; name != "" {
			keys[name] = struct{}{}
		}
	}
	return keys
}

// decodeOpen unmarshals data into dst (pointer to a plain struct) and returns
// any keys not declared on the struct, so callers can round-trip them.
func decodeOpen(data []byte, dst any) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, dst); err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	known := knownFields(reflect.TypeOf(dst).Elem())
	for k := range raw {
		if _, ok := known[k]; ok {
			delete(raw, k)
		}
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}

// encodeOpen marshals src and merges the extra bag back in. Declared fields
// win over stale extra entries of the same name.
func encodeOpen(src any, extra map[string]json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(src)
	if err != nil || len(extra) == 0 {
		return b, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

func (p *Project) UnmarshalJSON(data []byte) error {
	type plain Project
	var v plain
	extra, err := decodeOpen(data, &v)
	if err != nil {
		return err
	}
	v.Extra = extra
	*p = Project(v)
	return nil
}

func (p Project) MarshalJSON() ([]byte, error) {
	type plain Project
	return encodeOpen(plain(p), p.Extra)
}

func (s *WorkStage) UnmarshalJSON(data []byte) error {
	type plain WorkStage
	var v plain
	extra, err := decodeOpen(data, &v)
	if err != nil {
		return err
	}
	v.Extra = extra
	*s = WorkStage(v)
	return nil
}

func (s WorkStage) MarshalJSON() ([]byte, error) {
	type plain WorkStage
	return encodeOpen(plain(s), s.Extra)
}

func (k *WorkKind) UnmarshalJSON(data []byte) error {
	type plain WorkKind
	var v plain
	extra, err := decodeOpen(data, &v)
	if err != nil {
		return err
	}
	v.Extra = extra
	*k = WorkKind(v)
	return nil
}

func (k WorkKind) MarshalJSON() ([]byte, error) {
	type plain WorkKind
	return encodeOpen(plain(k), k.Extra)
}

func (w *WorkType) UnmarshalJSON(data []byte) error {
	type plain WorkType
	var v plain
	extra, err := decodeOpen(data, &v)
	if err != nil {
		return err
	}
	v.Extra = extra
	*w = WorkType(v)
	return nil
}

func (w WorkType) MarshalJSON() ([]byte, error) {
	type plain WorkType
	return encodeOpen(plain(w), w.Extra)
}

func (t *Task) UnmarshalJSON(data []byte) error {
	type plain Task
	var v plain
	extra, err := decodeOpen(data, &v)
	if err != nil {
		return err
	}
	v.Extra = extra
	*t = Task(v)
	return nil
}

func (t Task) MarshalJSON() ([]byte, error) {
	type plain Task
	return encodeOpen(plain(t), t.Extra)
}

func (s *Subtask) UnmarshalJSON(data []byte) error {
	type plain Subtask
	var v plain
	extra, err := decodeOpen(data, &v)
	if err != nil {
		return err
	}
	v.Extra = extra
	*s = Subtask(v)
	return nil
}

func (s Subtask) MarshalJSON() ([]byte, error) {
	type plain Subtask
	return encodeOpen(plain(s), s.Extra)
}

func (b *Brigade) UnmarshalJSON(data []byte) error {
	type plain Brigade
	var v plain
	extra, err := decodeOpen(data, &v)
	if err != nil {
		return err
	}
	v.Extra = extra
	*b = Brigade(v)
	return nil
}

func (b Brigade) MarshalJSON() ([]byte, error) {
	type plain Brigade
	return encodeOpen(plain(b), b.Extra)
}

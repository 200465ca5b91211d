package signaling

import (
	"fmt"
	"time"

	"call-platform/internal/call"
)

// Field coercion shared by the channel implementations. UpdateFields carries
// typed values (call.Status, call.Description, time.Time, int); implementations
// normalize them here so both backends accept the same payloads.

func asStatus(v any) (call.Status, error) {
	switch s := v.(type) {
	case call.Status:
		return s, nil
	case string:
		return call.Status(s), nil
	default:
		return "", fmt.Errorf("signaling: status field must be a status, got %T", v)
	}
}

func asDescription(v any) (call.Description, error) {
	switch d := v.(type) {
	case call.Description:
		return d, nil
	case *call.Description:
		if d == nil {
			return call.Description{}, fmt.Errorf("signaling: nil description")
		}
		return *d, nil
	default:
		return call.Description{}, fmt.Errorf("signaling: answer field must be a description, got %T", v)
	}
}

func asTime(v any) (time.Time, error) {
	if t, ok := v.(time.Time); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("signaling: time field must be a time.Time, got %T", v)
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("signaling: duration field must be an int, got %T", v)
	}
}

// applyFields mutates rec with a partial update, last write wins per field.
func applyFields(rec *call.Record, fields call.Fields) error {
	for k, v := range fields {
		switch k {
		case call.FieldStatus:
			s, err := asStatus(v)
			if err != nil {
				return err
			}
			rec.Status = s
		case call.FieldAnswer:
			d, err := asDescription(v)
			if err != nil {
				return err
			}
			rec.Answer = &d
		case call.FieldAnswerTime:
			t, err := asTime(v)
			if err != nil {
				return err
			}
			rec.AnswerTime = t
		case call.FieldEndTime:
			t, err := asTime(v)
			if err != nil {
				return err
			}
			rec.EndTime = t
		case call.FieldDuration:
			n, err := asInt(v)
			if err != nil {
				return err
			}
			rec.DurationSeconds = n
		default:
			return fmt.Errorf("signaling: unknown field %q", k)
		}
	}
	return nil
}

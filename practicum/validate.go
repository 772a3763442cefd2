package practicum

import (
	"encoding/json"
	"fmt"
	"math"

	"homework-notifier/pkg/homework"
)

// CheckResponse verifies a decoded payload has the documented shape and
// returns it typed. Homework records are not checked beyond being objects;
// field-level problems surface in the status parser.
func CheckResponse(payload any) (*homework.Response, error) {
	doc, ok := payload.(map[string]any)
	if !ok {
		return nil, &ShapeError{Reason: fmt.Sprintf("top-level value is %s, not an object", kind(payload))}
	}

	rawHomeworks, ok := doc["homeworks"]
	if !ok {
		return nil, &ShapeError{Reason: `missing "homeworks" key`}
	}
	list, ok := rawHomeworks.([]any)
	if !ok {
		return nil, &ShapeError{Reason: fmt.Sprintf(`"homeworks" is %s, not a list`, kind(rawHomeworks))}
	}

	rawDate, ok := doc["current_date"]
	if !ok {
		return nil, &ShapeError{Reason: `missing "current_date" key`}
	}
	currentDate, ok := toInt64(rawDate)
	if !ok {
		return nil, &ShapeError{Reason: fmt.Sprintf(`"current_date" is %s, not an integer`, kind(rawDate))}
	}

	homeworks := make([]*homework.Homework, 0, len(list))
	for i, item := range list {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, &ShapeError{Reason: fmt.Sprintf("homework #%d is %s, not an object", i, kind(item))}
		}
		homeworks = append(homeworks, toHomework(fields))
	}

	return &homework.Response{
		Homeworks:   homeworks,
		CurrentDate: currentDate,
	}, nil
}

func toHomework(fields map[string]any) *homework.Homework {
	hw := &homework.Homework{
		Name:            stringField(fields, "homework_name"),
		Status:          stringField(fields, "status"),
		LessonName:      stringField(fields, "lesson_name"),
		ReviewerComment: stringField(fields, "reviewer_comment"),
		DateUpdated:     stringField(fields, "date_updated"),
	}
	if id, ok := toInt64(fields["id"]); ok {
		hw.ID = id
	}
	return hw
}

// stringField returns "" for absent and non-string values alike.
func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case float64:
		return floatToInt64(n)
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "an object"
	case []any:
		return "a list"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case json.Number, float64, int, int64:
		return "a number"
	default:
		return fmt.Sprintf("%T", v)
	}
}

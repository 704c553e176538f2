package feed

import (
	"errors"
	"reflect"
	"testing"

	"github.com/signalsfoundry/mapdraw/model"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		want    model.FeedSnapshot
		wantErr bool
	}{
		{name: "empty body", payload: "", want: nil},
		{name: "whitespace", payload: "  \n", want: nil},
		{name: "null", payload: "null", want: nil},
		{name: "empty array", payload: "[]", want: nil},
		{
			name:    "records",
			payload: `[{"id":"a","position":[1,2],"signalMetric":25,"connections":["b"]},{"id":"b","position":[3,4],"signalMetric":-1}]`,
			want: model.FeedSnapshot{
				{ID: "a", Position: model.Coordinate{Lng: 1, Lat: 2}, SignalMetric: 25, Connections: []string{"b"}},
				{ID: "b", Position: model.Coordinate{Lng: 3, Lat: 4}, SignalMetric: -1},
			},
		},
		{name: "object", payload: `{"id":"a"}`, wantErr: true},
		{name: "string", payload: `"nodes"`, wantErr: true},
		{name: "truncated", payload: `[{"id":"a"`, wantErr: true},
		{name: "missing id", payload: `[{"position":[1,2],"signalMetric":1}]`, wantErr: true},
		{name: "empty id", payload: `[{"id":"","position":[1,2],"signalMetric":1}]`, wantErr: true},
		{name: "missing position", payload: `[{"id":"a","signalMetric":1}]`, wantErr: true},
		{name: "short position", payload: `[{"id":"a","position":[1],"signalMetric":1}]`, wantErr: true},
		{name: "missing metric", payload: `[{"id":"a","position":[1,2]}]`, wantErr: true},
		{name: "non-object record", payload: `[1]`, wantErr: true},
		{
			name:    "one bad record poisons the batch",
			payload: `[{"id":"a","position":[1,2],"signalMetric":1},{"id":"b"}]`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Decode([]byte(tc.payload))
			if tc.wantErr {
				if !errors.Is(err, ErrMalformedFeed) {
					t.Fatalf("Decode(%q) err = %v, want ErrMalformedFeed", tc.payload, err)
				}
				if got != nil {
					t.Fatalf("Decode(%q) = %v, want nil on error", tc.payload, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode(%q) err = %v", tc.payload, err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Decode(%q) = %+v, want %+v", tc.payload, got, tc.want)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	snap := model.FeedSnapshot{
		{ID: "n1", Position: model.Coordinate{Lng: -122.4, Lat: 37.7}, SignalMetric: 12.5, Connections: []string{"n2"}},
		{ID: "n2", Position: model.Coordinate{Lng: -122.3, Lat: 37.8}, SignalMetric: 30},
	}
	data, err := Encode(snap)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, snap) {
		t.Fatalf("Decode(Encode(x)) = %+v, want %+v", got, snap)
	}

	data, _ = Encode(nil)
	if string(data) != "[]" {
		t.Fatalf("Encode(nil) = %s, want []", data)
	}
}

package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ghalamif/CamFlow/internal/domain"
)

func TestJSONLSinkAppendsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "metadata.jsonl")
	sink, err := NewJSONLSink(path, true)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	batch := []*domain.Record{
		{ID: "a", Kind: domain.RecordImage, Image: &domain.ImageRecord{Number: 1, Camera: "Cam1", Filename: "images/Cam1/<1>.jpg"}},
		{ID: "b", Kind: domain.RecordDropped, Dropped: &domain.DroppedRecord{Camera: "Cam2", Reason: "timeout"}},
	}
	if err := sink.WriteBatch(context.Background(), batch); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.WriteBatch(context.Background(), batch[:1]); err != nil {
		t.Fatalf("write second batch: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r domain.Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		ids = append(ids, r.ID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "a" {
		t.Fatalf("unexpected lines %v", ids)
	}

	if err := sink.WriteBatch(context.Background(), batch); err == nil {
		t.Fatalf("expected error after close")
	}
}

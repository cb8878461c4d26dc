package storage

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/jimbogithub/kafka/internal/coordinator"
)

func TestPartitionLog_AppendAndReadAll(t *testing.T) {
	log := NewPartitionLog()

	batch := []coordinator.Record{
		coordinator.NewConsumerGroupMetadataRecord("g-1", 1),
		coordinator.NewOffsetCommitRecord("g-1", "orders", 0, &coordinator.OffsetCommitValue{Offset: 5}),
		coordinator.NewOffsetCommitTombstone("g-1", "orders", 0),
	}
	n, err := log.Append(batch)
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if n != 3 {
		t.Errorf("length after append: got %d, want 3", n)
	}

	records, err := log.ReadAll()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !reflect.DeepEqual(records, batch) {
		t.Errorf("read mismatch:\n got %+v\nwant %+v", records, batch)
	}
}

func TestPartitionLog_BatchAtomicity(t *testing.T) {
	log := NewPartitionLog()

	// A record without a key cannot be encoded: the whole batch must fail
	// with nothing appended, including the valid record before it.
	batch := []coordinator.Record{
		coordinator.NewConsumerGroupMetadataRecord("g-1", 1),
		{},
	}
	if _, err := log.Append(batch); err == nil {
		t.Fatal("batch with an unencodable record must fail")
	}
	if log.Len() != 0 {
		t.Errorf("failed batch must append nothing: %d records", log.Len())
	}
}

func TestPartitionLog_ReadFailsOnCorruptFrame(t *testing.T) {
	log := NewPartitionLog()
	if _, err := log.Append([]coordinator.Record{coordinator.NewConsumerGroupMetadataRecord("g-1", 1)}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	frame, err := coordinator.NewConsumerGroupMetadataRecord("g-2", 2).EncodeFrame()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	frame[len(frame)-1] ^= 0xFF
	log.AppendFrame(frame)

	if _, err := log.ReadAll(); err == nil {
		t.Fatal("corrupt frame must fail the whole read")
	}
}

func TestPartitionLog_ConcurrentBatchesStayContiguous(t *testing.T) {
	log := NewPartitionLog()

	const writers = 8
	const batchSize = 5

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			group := fmt.Sprintf("g-%d", w)
			batch := make([]coordinator.Record, batchSize)
			for i := range batch {
				batch[i] = coordinator.NewOffsetCommitRecord(group, "orders", int32(i), &coordinator.OffsetCommitValue{Offset: int64(i)})
			}
			if _, err := log.Append(batch); err != nil {
				t.Errorf("append failed: %v", err)
			}
		}(w)
	}
	wg.Wait()

	records, err := log.ReadAll()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(records) != writers*batchSize {
		t.Fatalf("record count: got %d, want %d", len(records), writers*batchSize)
	}

	// Each writer's batch must occupy a contiguous run.
	for i := 0; i < len(records); i += batchSize {
		owner := recordGroup(t, records[i])
		for j := 1; j < batchSize; j++ {
			if g := recordGroup(t, records[i+j]); g != owner {
				t.Fatalf("batch interleaved at position %d: %s then %s", i+j, owner, g)
			}
		}
	}
}

// recordGroup pulls the group id out of an offset commit key, which is the
// key's first length-prefixed string.
func recordGroup(t *testing.T, rec coordinator.Record) string {
	t.Helper()
	data := rec.Key.Data
	if len(data) < 2 {
		t.Fatal("malformed key")
	}
	n := int(data[0])<<8 | int(data[1])
	if 2+n > len(data) {
		t.Fatal("malformed key")
	}
	return string(data[2 : 2+n])
}

package vector

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// On-disk layout: two companion files that always change together.
//
//   <path>.json            manifest: metadata map plus the name of the vector
//                          file it belongs to (paired by snapshot UUID)
//   <path>-<snapshot>.vec  raw vectors: binary header + (entry_id, float32[D])
//                          records in insertion order
//
// The manifest is renamed into place last, so a crash at any point leaves the
// previous manifest referencing the previous vector file and the old snapshot
// stays loadable. Tombstoned entries are compacted away at save time; entry
// IDs and surviving vectors are written unchanged, and next_entry_id is
// persisted so IDs are never reused.

const (
	vecMagic   uint32 = 0x56454331 // "VEC1"
	vecVersion uint32 = 1
)

type manifest struct {
	SnapshotID  string          `json:"snapshot_id"`
	VectorFile  string          `json:"vector_file"`
	Dimensions  int             `json:"dimensions"`
	Count       int             `json:"count"`
	NextEntryID int64           `json:"next_entry_id"`
	Entries     []manifestEntry `json:"entries"`
}

type manifestEntry struct {
	EntryID int64 `json:"entry_id"`
	EntryMeta
}

// Save persists a consistent snapshot of the live entries under path.
// Concurrent saves are serialized; the snapshot is taken under the read lock
// so it never observes a half-applied mutation.
func (ix *Index) Save(path string) error {
	if path == "" {
		return nil
	}
	ix.saveMu.Lock()
	defer ix.saveMu.Unlock()

	ix.mu.RLock()
	entries := make([]manifestEntry, 0, len(ix.ids))
	vecs := make([][]float32, 0, len(ix.ids))
	for i, id := range ix.ids {
		if _, dead := ix.tombstones[id]; dead {
			continue
		}
		entries = append(entries, manifestEntry{EntryID: id, EntryMeta: ix.meta[id]})
		vecs = append(vecs, ix.vectors[i])
	}
	nextID := ix.nextID
	dim := ix.dimensions
	ix.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	snapshot := uuid.New()
	vecName := fmt.Sprintf("%s-%s.vec", filepath.Base(path), snapshot)
	vecPath := filepath.Join(filepath.Dir(path), vecName)
	if err := writeVectorFile(vecPath, snapshot, dim, nextID, entries, vecs); err != nil {
		return err
	}

	m := manifest{
		SnapshotID:  snapshot.String(),
		VectorFile:  vecName,
		Dimensions:  dim,
		Count:       len(entries),
		NextEntryID: nextID,
		Entries:     entries,
	}
	data, err := json.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeFileAtomic(path+".json", data); err != nil {
		_ = os.Remove(vecPath)
		return err
	}

	ix.removeStaleSnapshots(path, vecName)
	return nil
}

// Load restores the snapshot at path, replacing the in-memory contents.
// A missing manifest leaves the index empty without error. A manifest whose
// dimension differs from the configured one fails with ErrDimensionMismatch;
// any inconsistency between the two files fails with ErrCorruptIndex.
func (ix *Index) Load(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path + ".json")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse manifest: %w", ErrCorruptIndex)
	}
	if m.Dimensions != ix.dimensions {
		return fmt.Errorf("index file has dimension %d, configured %d: %w", m.Dimensions, ix.dimensions, ErrDimensionMismatch)
	}
	if len(m.Entries) != m.Count {
		return fmt.Errorf("manifest count %d but %d entries: %w", m.Count, len(m.Entries), ErrCorruptIndex)
	}

	vecPath := filepath.Join(filepath.Dir(path), m.VectorFile)
	ids, vecs, nextID, err := readVectorFile(vecPath, m)
	if err != nil {
		return err
	}

	meta := make(map[int64]EntryMeta, len(m.Entries))
	for _, e := range m.Entries {
		meta[e.EntryID] = e.EntryMeta
	}
	norms := make([]float64, len(vecs))
	maxID := int64(-1)
	for i, id := range ids {
		if _, ok := meta[id]; !ok {
			return fmt.Errorf("vector file entry %d missing from manifest: %w", id, ErrCorruptIndex)
		}
		norms[i] = L2Norm(vecs[i])
		if id > maxID {
			maxID = id
		}
	}
	if nextID <= maxID {
		return fmt.Errorf("next entry id %d not past max id %d: %w", nextID, maxID, ErrCorruptIndex)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.ids = ids
	ix.vectors = vecs
	ix.norms = norms
	ix.meta = meta
	ix.tombstones = make(map[int64]struct{})
	ix.nextID = nextID
	return nil
}

func writeVectorFile(vecPath string, snapshot uuid.UUID, dim int, nextID int64, entries []manifestEntry, vecs [][]float32) error {
	tmp := vecPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create vector file: %w", err)
	}
	defer func() {
		if f != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	header := []any{vecMagic, vecVersion, uint32(dim), uint32(len(entries)), nextID}
	for _, v := range header {
		if err := binary.Write(f, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write vector header: %w", err)
		}
	}
	if _, err := f.Write(snapshot[:]); err != nil {
		return fmt.Errorf("write snapshot id: %w", err)
	}
	for i, e := range entries {
		if err := binary.Write(f, binary.LittleEndian, e.EntryID); err != nil {
			return fmt.Errorf("write entry id: %w", err)
		}
		if _, err := f.Write(float32SliceToBytes(vecs[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync vector file: %w", err)
	}
	if err := f.Close(); err != nil {
		f = nil
		_ = os.Remove(tmp)
		return fmt.Errorf("close vector file: %w", err)
	}
	f = nil
	if err := os.Rename(tmp, vecPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename vector file: %w", err)
	}
	return nil
}

func readVectorFile(vecPath string, m manifest) (ids []int64, vecs [][]float32, nextID int64, err error) {
	f, err := os.Open(vecPath)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("vector file %s unreadable: %w", m.VectorFile, ErrCorruptIndex)
	}
	defer f.Close()

	var magic, version, dim, count uint32
	for _, p := range []*uint32{&magic, &version, &dim, &count} {
		if err := binary.Read(f, binary.LittleEndian, p); err != nil {
			return nil, nil, 0, fmt.Errorf("read vector header: %w", ErrCorruptIndex)
		}
	}
	if magic != vecMagic || version != vecVersion {
		return nil, nil, 0, fmt.Errorf("bad vector file magic/version: %w", ErrCorruptIndex)
	}
	if err := binary.Read(f, binary.LittleEndian, &nextID); err != nil {
		return nil, nil, 0, fmt.Errorf("read next entry id: %w", ErrCorruptIndex)
	}
	var snapshot uuid.UUID
	if _, err := io.ReadFull(f, snapshot[:]); err != nil {
		return nil, nil, 0, fmt.Errorf("read snapshot id: %w", ErrCorruptIndex)
	}
	if snapshot.String() != m.SnapshotID {
		return nil, nil, 0, fmt.Errorf("vector file snapshot %s does not match manifest %s: %w", snapshot, m.SnapshotID, ErrCorruptIndex)
	}
	if int(dim) != m.Dimensions || int(count) != m.Count {
		return nil, nil, 0, fmt.Errorf("vector file header disagrees with manifest: %w", ErrCorruptIndex)
	}

	ids = make([]int64, 0, count)
	vecs = make([][]float32, 0, count)
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < count; i++ {
		var id int64
		if err := binary.Read(f, binary.LittleEndian, &id); err != nil {
			return nil, nil, 0, fmt.Errorf("read entry id: %w", ErrCorruptIndex)
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, nil, 0, fmt.Errorf("read vector: %w", ErrCorruptIndex)
		}
		ids = append(ids, id)
		vecs = append(vecs, bytesToFloat32Slice(buf))
	}
	return ids, vecs, nextID, nil
}

// removeStaleSnapshots deletes vector files from earlier snapshots. Best effort;
// a leftover file is unreferenced and harmless.
func (ix *Index) removeStaleSnapshots(path, current string) {
	dir := filepath.Dir(path)
	prefix := filepath.Base(path) + "-"
	names, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range names {
		name := e.Name()
		if name == current || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".vec") {
			continue
		}
		_ = os.Remove(filepath.Join(dir, name))
	}
}

// writeFileAtomic writes data to a temporary file in the target directory,
// syncs it, and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

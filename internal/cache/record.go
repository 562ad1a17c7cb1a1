package cache

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/oxtoacart/bpool"

	"github.com/objectfs/tilecache/pkg/errors"
	"github.com/objectfs/tilecache/pkg/types"
)

const spillFileExt = ".tile"

// persistBuffers stages bank bytes before a spill file is written. Idle
// buffers are held outside the memory budget: at most persistBufferCount of
// them, each shrunk back to persistBufferSize when returned.
var persistBuffers = bpool.NewSizedBufferPool(persistBufferCount, persistBufferSize)

const (
	persistBufferCount = 8
	persistBufferSize  = 256 * 1024
)

// Action is the most recent thing that happened to a tile record
type Action int

const (
	ActionAdded Action = iota
	ActionAddedResident
	ActionResident
	ActionNonResident
	ActionAccessed
	ActionRemoved
	ActionGarbageCollected
)

func (a Action) String() string {
	switch a {
	case ActionAdded:
		return "added"
	case ActionAddedResident:
		return "added_resident"
	case ActionResident:
		return "resident"
	case ActionNonResident:
		return "non_resident"
	case ActionAccessed:
		return "accessed"
	case ActionRemoved:
		return "removed"
	case ActionGarbageCollected:
		return "garbage_collected"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// TileRecord is the cache's bookkeeping entry for one tracked tile. It
// remembers enough layout to rebuild the tile from its spill file and never
// holds the tile data itself.
type TileRecord struct {
	id     types.TileID
	owners types.OwnerResolver

	byteLength int64
	numBanks   int
	bankBytes  int
	sampleType SampleType
	writable   bool
	minX       int
	minY       int

	lastAccess time.Time
	action     Action

	// dir is where the spill file is created, path is "" until it exists
	dir  string
	path string
}

func newTileRecord(id types.TileID, owners types.OwnerResolver, dir string, tile *Tile, now time.Time) *TileRecord {
	r := &TileRecord{
		id:         id,
		owners:     owners,
		byteLength: tile.ByteLength(),
		numBanks:   len(tile.Banks),
		sampleType: tile.SampleType,
		writable:   tile.Writable,
		minX:       tile.MinX,
		minY:       tile.MinY,
		lastAccess: now,
		dir:        dir,
	}
	if r.numBanks > 0 {
		r.bankBytes = len(tile.Banks[0])
	}
	return r
}

// ID returns the identity of the tile
func (r *TileRecord) ID() types.TileID { return r.id }

// ByteLength returns the size of the tile data in bytes
func (r *TileRecord) ByteLength() int64 { return r.byteLength }

// LastAccess returns the time of the last access through the cache
func (r *TileRecord) LastAccess() time.Time { return r.lastAccess }

// Action returns the most recent action on the record
func (r *TileRecord) Action() Action { return r.action }

// Writable reports whether the tile data can change after it was added
func (r *TileRecord) Writable() bool { return r.writable }

// DiskPath returns the spill file path, or "" when there is no disk copy
func (r *TileRecord) DiskPath() string { return r.path }

// CachedToDisk reports whether a spill file exists for the tile
func (r *TileRecord) CachedToDisk() bool { return r.path != "" }

// Touch records an access at now
func (r *TileRecord) Touch(now time.Time) {
	r.lastAccess = now
}

// OwnerAlive reports whether the owner still resolves
func (r *TileRecord) OwnerAlive() bool {
	_, ok := r.owners.Resolve(r.id.Owner)
	return ok
}

// Persist writes the banks of tile to the record's spill file, creating the
// file on first use. Banks are stored back to back with no header.
func (r *TileRecord) Persist(tile *Tile) error {
	if err := r.checkLayout(tile); err != nil {
		return err
	}

	path := r.path
	if path == "" {
		if err := os.MkdirAll(r.dir, 0750); err != nil {
			return r.diskError(err, errors.ErrCodePersistFailed, "persist", "create spill directory")
		}
		path = filepath.Join(r.dir, uuid.NewString()+spillFileExt)
	}

	buf := persistBuffers.Get()
	defer persistBuffers.Put(buf)
	buf.Grow(int(r.byteLength))
	for _, bank := range tile.Banks {
		buf.Write(bank)
	}

	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return r.diskError(err, errors.ErrCodePersistFailed, "persist", "write spill file").
			WithContext("path", path)
	}

	r.path = path
	return nil
}

// Load rebuilds the tile from its spill file. It returns (nil, nil) when
// there is no disk copy or the owner is gone, and an error when the file
// cannot be read in full.
func (r *TileRecord) Load() (*Tile, error) {
	if r.path == "" || !r.OwnerAlive() {
		return nil, nil
	}

	file, err := os.Open(r.path)
	if err != nil {
		return nil, r.diskError(err, errors.ErrCodeLoadFailed, "load", "open spill file").
			WithContext("path", r.path)
	}
	defer func() { _ = file.Close() }()

	banks := make([][]byte, r.numBanks)
	for i := range banks {
		banks[i] = make([]byte, r.bankBytes)
		if _, err := io.ReadFull(file, banks[i]); err != nil {
			return nil, r.diskError(err, errors.ErrCodeLoadFailed, "load", "read spill file").
				WithContext("path", r.path).
				WithDetail("bank", i).
				WithDetail("expected_bytes", r.byteLength)
		}
	}

	return &Tile{
		Banks:      banks,
		SampleType: r.sampleType,
		Writable:   r.writable,
		MinX:       r.minX,
		MinY:       r.minY,
	}, nil
}

// DeleteDiskCopy removes the spill file. The record forgets the path even when
// removal fails, so a file is never deleted twice.
func (r *TileRecord) DeleteDiskCopy() error {
	if r.path == "" {
		return nil
	}
	path := r.path
	r.path = ""

	if err := os.Remove(path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return r.diskError(err, errors.ErrCodeDeleteFailed, "delete", "remove spill file").
			WithContext("path", path)
	}
	return nil
}

// Info returns a snapshot of the record for visitors
func (r *TileRecord) Info() RecordInfo {
	return RecordInfo{
		ID:         r.id,
		ByteLength: r.byteLength,
		NumBanks:   r.numBanks,
		BankLength: r.bankBytes / max(r.sampleType.Size(), 1),
		SampleType: r.sampleType,
		Writable:   r.writable,
		MinX:       r.minX,
		MinY:       r.minY,
		LastAccess: r.lastAccess,
		Action:     r.action,
		DiskPath:   r.path,
	}
}

func (r *TileRecord) checkLayout(tile *Tile) error {
	if err := tile.Validate(); err != nil {
		return err
	}
	if len(tile.Banks) != r.numBanks || len(tile.Banks[0]) != r.bankBytes || tile.SampleType != r.sampleType {
		return errors.NewError(errors.ErrCodeInvalidTile, "tile layout differs from the tracked layout").
			WithComponent(component).
			WithContext("tile", r.id.String()).
			WithDetail("banks", len(tile.Banks)).
			WithDetail("tracked_banks", r.numBanks)
	}
	return nil
}

func (r *TileRecord) diskError(cause error, code errors.ErrorCode, op, msg string) *errors.CacheError {
	return errors.Wrap(cause, code, msg).
		WithComponent(component).
		WithOperation(op).
		WithContext("tile", r.id.String())
}

// RecordInfo is a read-only view of a tile record handed to visitors
type RecordInfo struct {
	ID         types.TileID `json:"id"`
	ByteLength int64        `json:"byte_length"`
	NumBanks   int          `json:"num_banks"`
	BankLength int          `json:"bank_length"`
	SampleType SampleType   `json:"sample_type"`
	Writable   bool         `json:"writable"`
	MinX       int          `json:"min_x"`
	MinY       int          `json:"min_y"`
	LastAccess time.Time    `json:"last_access"`
	Action     Action       `json:"action"`
	DiskPath   string       `json:"disk_path,omitempty"`
}

// CachedToDisk reports whether the tile had a spill file when the snapshot was taken
func (i RecordInfo) CachedToDisk() bool { return i.DiskPath != "" }

// writeFileAtomic writes data to a temporary file next to path and renames it
// into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".spill-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

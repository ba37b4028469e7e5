// Package imagestore keeps named program images in a pebble database. Each
// encoded image is erasure coded into data and parity shards so that a
// damaged shard is rebuilt on load instead of failing it.
package imagestore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"

	"pcode/pkg/image"

	"github.com/cockroachdb/pebble"
	"github.com/klauspost/reedsolomon"
	"golang.org/x/crypto/blake2b"
)

const (
	DataShards   = 4
	ParityShards = 2

	metaSize = 4 + blake2b.Size256
)

var (
	ErrNotFound = errors.New("image not found")
	ErrBadName  = errors.New("invalid image name")
	ErrCorrupt  = errors.New("image cannot be recovered")
)

// Store is a pebble-backed repository of program images. It is safe for
// concurrent use.
type Store struct {
	db  *pebble.DB
	enc reedsolomon.Encoder
}

// Open opens (creating if needed) the store in dir.
func Open(dir string) (*Store, error) {
	enc, err := reedsolomon.New(DataShards, ParityShards)
	if err != nil {
		return nil, fmt.Errorf("failed to create Reed-Solomon encoder: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open image store: %w", err)
	}
	return &Store{db: db, enc: enc}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Keys are "i/<name>/m" for metadata (length and digest of the encoding)
// and "i/<name>/s<k>" for shard k (blake2b checksum followed by data).
func namePrefix(name string) []byte { return []byte("i/" + name + "/") }
func metaKey(name string) []byte    { return append(namePrefix(name), 'm') }
func shardKey(name string, k int) []byte {
	return append(namePrefix(name), 's', byte('0'+k))
}

func checkName(name string) error {
	if name == "" || len(name) > 255 || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%q: %w", name, ErrBadName)
	}
	return nil
}

// Put stores img under name, replacing any previous image of that name.
func (s *Store) Put(name string, img *image.Image) error {
	if err := checkName(name); err != nil {
		return err
	}
	data := image.Encode(img)
	shards, err := s.enc.Split(bytes.Clone(data))
	if err != nil {
		return fmt.Errorf("failed to split image: %w", err)
	}
	if err := s.enc.Encode(shards); err != nil {
		return fmt.Errorf("failed to compute parity: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	meta := make([]byte, 4, metaSize)
	binary.LittleEndian.PutUint32(meta, uint32(len(data)))
	digest := blake2b.Sum256(data)
	meta = append(meta, digest[:]...)
	if err := batch.Set(metaKey(name), meta, nil); err != nil {
		return err
	}
	for k, shard := range shards {
		sum := blake2b.Sum256(shard)
		if err := batch.Set(shardKey(name, k), append(sum[:], shard...), nil); err != nil {
			return err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to store image %s: %w", name, err)
	}
	return nil
}

// Get loads the image stored under name. Shards whose checksum does not
// match are dropped and rebuilt from the others.
func (s *Store) Get(name string) (*image.Image, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	meta, err := s.value(metaKey(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if len(meta) != metaSize {
		return nil, fmt.Errorf("%s: metadata is %d bytes: %w", name, len(meta), ErrCorrupt)
	}
	size := int(binary.LittleEndian.Uint32(meta))

	shards := make([][]byte, DataShards+ParityShards)
	damaged := 0
	for k := range shards {
		v, err := s.value(shardKey(name, k))
		if err != nil && !errors.Is(err, pebble.ErrNotFound) {
			return nil, err
		}
		if len(v) < blake2b.Size256 {
			damaged++
			continue
		}
		sum, shard := v[:blake2b.Size256], v[blake2b.Size256:]
		if got := blake2b.Sum256(shard); !bytes.Equal(got[:], sum) {
			damaged++
			continue
		}
		shards[k] = shard
	}
	if damaged > 0 {
		if err := s.enc.ReconstructData(shards); err != nil {
			return nil, fmt.Errorf("%s: %d damaged shards: %w", name, damaged, errors.Join(ErrCorrupt, err))
		}
	}

	var buf bytes.Buffer
	if err := s.enc.Join(&buf, shards, size); err != nil {
		return nil, fmt.Errorf("%s: %w", name, errors.Join(ErrCorrupt, err))
	}
	if digest := blake2b.Sum256(buf.Bytes()); !bytes.Equal(digest[:], meta[4:]) {
		return nil, fmt.Errorf("%s: digest mismatch: %w", name, ErrCorrupt)
	}
	img, err := image.Decode(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return img, nil
}

// Delete removes name. Deleting a missing image is not an error.
func (s *Store) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	prefix := namePrefix(name)
	if err := s.db.DeleteRange(prefix, prefixEnd(prefix), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete image %s: %w", name, err)
	}
	return nil
}

// List returns the stored image names in ascending order.
func (s *Store) List() ([]string, error) {
	lower := []byte("i/")
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: prefixEnd(lower)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var names []string
	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key()[len(lower):])
		if name, ok := strings.CutSuffix(key, "/m"); ok {
			names = append(names, name)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

// value returns a copy of the value stored at key.
func (s *Store) value(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(v), nil
}

// prefixEnd is the smallest key greater than every key starting with p.
func prefixEnd(p []byte) []byte {
	end := bytes.Clone(p)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Package bolt is a Store backed by bbolt: one bucket per identity,
// entries keyed by group and sub-keys so that cursor scans come back
// in Key order.
package bolt

import (
	"bytes"
	"encoding/json"
	"log"
	"time"

	"github.com/millrace/millrace/store"

	bolt "go.etcd.io/bbolt"
)

// sep separates the group from the sub-keys inside an entry key.  It
// sorts before any printable byte, so all of a group's entries are
// contiguous under a cursor.
const sep = byte(0x00)

type Store struct {
	Debug bool

	filename string
	db       *bolt.DB
}

// NewStore makes a Store that will use the given file.  Call Open
// before use.
func NewStore(filename string) (*Store, error) {
	return &Store{
		filename: filename,
	}, nil
}

func (s *Store) Open() error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) logf(format string, args ...interface{}) {
	if s.Debug {
		log.Printf("bolt Store."+format, args...)
	}
}

// entry is the stored representation: enough to rebuild the Key on
// Scan along with the snapshot itself.
type entry struct {
	Kind     store.Kind     `json:"kind"`
	At       time.Time      `json:"at,omitempty"`
	Snapshot store.Snapshot `json:"snapshot"`
}

func entryKey(k store.Key) []byte {
	bs := []byte(k.Group)
	for _, sub := range k.SubKeys {
		bs = append(bs, sep)
		bs = append(bs, []byte(sub)...)
	}
	return bs
}

func splitEntryKey(bs []byte) (group string, subKeys []string) {
	parts := bytes.Split(bs, []byte{sep})
	group = string(parts[0])
	for _, p := range parts[1:] {
		subKeys = append(subKeys, string(p))
	}
	return
}

func (s *Store) Get(k store.Key) (store.Snapshot, error) {
	s.logf("Get %s", k)

	var snap store.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(k.Identity))
		if b == nil {
			return nil
		}
		bs := b.Get(entryKey(k))
		if bs == nil {
			return nil
		}
		var e entry
		if err := json.Unmarshal(bs, &e); err != nil {
			return err
		}
		snap = e.Snapshot
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) Set(k store.Key, snap store.Snapshot) error {
	s.logf("Set %s", k)

	js, err := json.Marshal(&entry{
		Kind:     k.Kind,
		At:       k.At,
		Snapshot: snap,
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(k.Identity))
		if err != nil {
			return err
		}
		return b.Put(entryKey(k), js)
	})
}

func (s *Store) Scan(identity, group string) ([]store.Entry, error) {
	s.logf("Scan %s %s", identity, group)

	acc := make([]store.Entry, 0, 32)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(identity))
		if b == nil {
			return nil
		}
		prefix := []byte(group)
		c := b.Cursor()
		for bs, v := c.Seek(prefix); bs != nil; bs, v = c.Next() {
			if !bytes.HasPrefix(bs, prefix) {
				break
			}
			// "games" must not match a scan for "game".
			if len(bs) > len(prefix) && bs[len(prefix)] != sep {
				continue
			}
			var e entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			g, subKeys := splitEntryKey(bs)
			acc = append(acc, store.Entry{
				Key: store.Key{
					Kind:     e.Kind,
					Identity: identity,
					Group:    g,
					SubKeys:  subKeys,
					At:       e.At,
				},
				Snapshot: e.Snapshot,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logf("Scan %s %s found %d entries", identity, group, len(acc))

	return acc, nil
}

func (s *Store) Evict(k store.Key) error {
	s.logf("Evict %s", k)

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(k.Identity))
		if b == nil {
			return nil
		}
		return b.Delete(entryKey(k))
	})
}

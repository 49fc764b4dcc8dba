package blockstore

import (
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/causaldb/causaldb/internal/cid"
)

// Pebble is a Store backed by a github.com/cockroachdb/pebble LSM-tree
// database, giving causaldb genuine on-disk persistence across process
// restarts. The teacher's go.mod carries pebble only as a transitive
// dependency (via github.com/luxfi/database); it is wired here directly
// as this module's one concrete durable backend, since causaldb has no
// analogue of the teacher's own database package to delegate to.
type Pebble struct {
	db *pebble.DB
}

var _ Store = (*Pebble)(nil)

// OpenPebble opens (creating if absent) a Pebble store at dir.
func OpenPebble(dir string) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("blockstore: open pebble at %q: %w", dir, err)
	}
	return &Pebble{db: db}, nil
}

// Close releases the underlying Pebble database handle.
func (p *Pebble) Close() error {
	return p.db.Close()
}

func key(c cid.CID) []byte {
	b, _ := c.MarshalBinary()
	return b
}

func (p *Pebble) Put(ctx context.Context, c cid.CID, bytes []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	has, err := p.Has(ctx, c)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	return p.db.Set(key(c), bytes, pebble.Sync)
}

func (p *Pebble) Get(ctx context.Context, c cid.CID) (Block, error) {
	if err := ctx.Err(); err != nil {
		return Block{}, err
	}
	v, closer, err := p.db.Get(key(c))
	if err != nil {
		if err == pebble.ErrNotFound {
			return Block{}, fmt.Errorf("%w: %s", ErrNotFound, c)
		}
		return Block{}, fmt.Errorf("blockstore: pebble get %s: %w", c, err)
	}
	defer closer.Close()
	cp := make([]byte, len(v))
	copy(cp, v)
	return Block{CID: c, Bytes: cp}, nil
}

func (p *Pebble) Has(ctx context.Context, c cid.CID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, closer, err := p.db.Get(key(c))
	if err != nil {
		if err == pebble.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("blockstore: pebble has %s: %w", c, err)
	}
	_ = closer.Close()
	return true, nil
}

func (p *Pebble) Entries(ctx context.Context) ([]Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("blockstore: pebble iterator: %w", err)
	}
	defer iter.Close()

	var out []Block
	for iter.First(); iter.Valid(); iter.Next() {
		var c cid.CID
		if err := c.UnmarshalBinary(iter.Key()); err != nil {
			return nil, fmt.Errorf("blockstore: decode stored key: %w", err)
		}
		v := iter.Value()
		cp := make([]byte, len(v))
		copy(cp, v)
		out = append(out, Block{CID: c, Bytes: cp})
	}
	return out, iter.Error()
}

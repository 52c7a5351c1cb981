// Package blocklog maintains the durable, append-only record of the
// irreversible chain on a leveldb key/value store.
package blocklog

import (
	"encoding/binary"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/crescentlabs/crescent/foundation/chain/block"
)

// ErrNotFound is returned when the requested block is not in the log.
var ErrNotFound = errors.New("block not in log")

// ErrOutOfOrder is returned when an append does not extend the head.
var ErrOutOfOrder = errors.New("append out of order")

var headKey = []byte("head")

// =============================================================================

// Log is the append-only block log. Blocks enter the log only once they
// are irreversible, so the log never rewinds.
type Log struct {
	db *leveldb.DB
}

// Open opens or creates the block log at the given path. An empty path
// opens an in-memory log, used by tests and trusted replay tooling.
func Open(path string) (*Log, error) {
	var db *leveldb.DB
	var err error

	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
		if ldberrors.IsCorrupted(err) {
			db, err = leveldb.RecoverFile(path, nil)
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "opening block log")
	}

	return &Log{db: db}, nil
}

// Close releases the underlying store.
func (l *Log) Close() error {
	return l.db.Close()
}

// =============================================================================

func blockKey(num uint64) []byte {
	key := make([]byte, 9)
	key[0] = 'b'
	binary.BigEndian.PutUint64(key[1:], num)
	return key
}

// Append adds the next irreversible block to the log. The block must
// extend the current head by exactly one.
func (l *Log) Append(b block.Block) error {
	headNum, err := l.HeadNum()
	if err != nil {
		return err
	}

	if b.Number != headNum+1 {
		return errors.Wrapf(ErrOutOfOrder, "have head %d, appending %d", headNum, b.Number)
	}

	data, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "encoding block")
	}

	batch := new(leveldb.Batch)
	batch.Put(blockKey(b.Number), data)

	head := make([]byte, 8)
	binary.BigEndian.PutUint64(head, b.Number)
	batch.Put(headKey, head)

	return errors.Wrapf(l.db.Write(batch, nil), "appending block %d", b.Number)
}

// ReadBlock returns the block with the given number.
func (l *Log) ReadBlock(num uint64) (block.Block, error) {
	data, err := l.db.Get(blockKey(num), nil)
	if err == leveldb.ErrNotFound {
		return block.Block{}, errors.Wrapf(ErrNotFound, "block %d", num)
	}
	if err != nil {
		return block.Block{}, errors.Wrapf(err, "reading block %d", num)
	}

	var b block.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return block.Block{}, errors.Wrapf(err, "decoding block %d", num)
	}

	return b, nil
}

// HeadNum returns the number of the newest block in the log, zero when
// the log is empty.
func (l *Log) HeadNum() (uint64, error) {
	data, err := l.db.Get(headKey, nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "reading log head")
	}

	return binary.BigEndian.Uint64(data), nil
}

// Head returns the newest block in the log. The boolean reports whether
// the log holds any block at all.
func (l *Log) Head() (block.Block, bool, error) {
	num, err := l.HeadNum()
	if err != nil || num == 0 {
		return block.Block{}, false, err
	}

	b, err := l.ReadBlock(num)
	if err != nil {
		return block.Block{}, false, err
	}

	return b, true, nil
}

// Flush forces buffered writes to stable storage.
func (l *Log) Flush() error {
	return l.db.CompactRange(util.Range{})
}

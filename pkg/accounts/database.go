// Package accounts is a small bank account database built on the storage
// layers: account records live in a record storage, a unique primary index
// maps account ids to record ids and a secondary index with duplicate keys
// maps (first name, age) to record ids.
package accounts

import (
	"context"

	"go-blockdb/pkg/block"
	"go-blockdb/pkg/bptree"
	"go-blockdb/pkg/codec"
	"go-blockdb/pkg/customerrors"
	"go-blockdb/pkg/record"
	"go-blockdb/util/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Options represents the configuration options for the database.
type Options struct {
	Storage *block.Options     `json:"storage"`
	Tree    bptree.Settings    `json:"tree"`
	Logger  logrus.FieldLogger `json:"-"`
}

// Database stores accounts in three files: <path> for the records,
// <path>.pidx for the primary index and <path>.sidx for the secondary one.
type Database struct {
	log       logrus.FieldLogger
	records   *record.Storage
	primary   *bptree.Tree[uuid.UUID, uint32]
	secondary *bptree.Tree[codec.StringInt, uint32]
}

// Open opens (or creates) the database files.
func Open(path string, opts *Options) (*Database, error) {
	if opts == nil {
		opts = &Options{}
	}

	log := opts.Logger
	if log == nil {
		log = logger.Component("accounts")
	}

	records, err := record.Open(path, opts.Storage)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open account records")
	}

	primary, err := bptree.Open(path+".pidx", &bptree.Options[uuid.UUID, uint32]{
		Settings:        opts.Tree,
		KeySerializer:   codec.UUID{},
		ValueSerializer: codec.Uint32{},
		Compare:         codec.CompareUUID,
		Storage:         opts.Storage,
		Logger:          opts.Logger,
	})
	if err != nil {
		_ = records.Close()
		return nil, errors.Wrap(err, "failed to open primary index")
	}

	secondary, err := bptree.Open(path+".sidx", &bptree.Options[codec.StringInt, uint32]{
		Settings:           opts.Tree,
		KeySerializer:      codec.StringIntSerializer{},
		ValueSerializer:    codec.Uint32{},
		Compare:            codec.CompareStringInt,
		AllowDuplicateKeys: true,
		Storage:            opts.Storage,
		Logger:             opts.Logger,
	})
	if err != nil {
		_ = records.Close()
		_ = primary.Close()
		return nil, errors.Wrap(err, "failed to open secondary index")
	}

	return &Database{
		log:       log,
		records:   records,
		primary:   primary,
		secondary: secondary,
	}, nil
}

// Insert stores a new account. ErrDuplicateKey is returned when an account
// with the same id exists.
func (db *Database) Insert(a *Account) error {
	if _, found, err := db.primary.Get(a.ID); err != nil {
		return err
	} else if found {
		return errors.Wrapf(customerrors.ErrDuplicateKey, "account %s", a.ID)
	}

	data, err := a.MarshalBinary()
	if err != nil {
		return err
	}
	recordId, err := db.records.CreateData(data)
	if err != nil {
		return errors.Wrapf(err, "failed to store account %s", a.ID)
	}

	if err := db.primary.Insert(a.ID, recordId); err != nil {
		return errors.Wrapf(err, "failed to index account %s", a.ID)
	}
	if err := db.secondary.Insert(secondaryKey(a), recordId); err != nil {
		return errors.Wrapf(err, "failed to index account %s", a.ID)
	}

	db.log.Debugf("inserted account %s as record %d", a.ID, recordId)
	return nil
}

// Find returns the account with the given id or ErrKeyNotFound.
func (db *Database) Find(id uuid.UUID) (*Account, error) {
	_, a, err := db.find(id)
	return a, err
}

// FindBy returns the accounts with the given first name and age, oldest
// first.
func (db *Database) FindBy(firstName string, age int32) ([]*Account, error) {
	key := codec.StringInt{S: firstName, I: age}

	var ids []uint32
	c := db.secondary.FindGreaterOrEqual(key)
	for c.Next() && codec.CompareStringInt(c.Key(), key) == 0 {
		ids = append(ids, c.Value())
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	result := make([]*Account, 0, len(ids))
	for _, id := range ids {
		a, err := db.load(id)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}

// Update replaces the stored account with the same id. The secondary index
// is fixed up when the first name or age changed.
func (db *Database) Update(a *Account) error {
	recordId, old, err := db.find(a.ID)
	if err != nil {
		return err
	}

	data, err := a.MarshalBinary()
	if err != nil {
		return err
	}
	if err := db.records.Update(recordId, data); err != nil {
		return errors.Wrapf(err, "failed to update account %s", a.ID)
	}

	oldKey, newKey := secondaryKey(old), secondaryKey(a)
	if codec.CompareStringInt(oldKey, newKey) == 0 {
		return nil
	}
	if _, err := db.secondary.DeleteValue(oldKey, recordId, codec.Compare[uint32]); err != nil {
		return err
	}
	return db.secondary.Insert(newKey, recordId)
}

// Delete removes the account with the given id or returns ErrKeyNotFound.
func (db *Database) Delete(id uuid.UUID) error {
	recordId, a, err := db.find(id)
	if err != nil {
		return err
	}

	primaryDeleted, err := db.primary.Delete(id)
	if err != nil {
		return err
	}
	secondaryDeleted, err := db.secondary.DeleteValue(secondaryKey(a), recordId, codec.Compare[uint32])
	if err != nil {
		return err
	}
	if !primaryDeleted || !secondaryDeleted {
		return errors.Wrapf(customerrors.ErrDataIntegrity, "indexes of account %s are out of sync", id)
	}

	return errors.Wrapf(db.records.Delete(recordId), "failed to delete account %s", id)
}

// Verify checks the free list of the records file and the structure of
// both indexes, then checks that every indexed record exists.
func (db *Database) Verify(ctx context.Context) error {
	// the three files share no state
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		return errors.Wrap(db.records.Check(), "records")
	})
	g.Go(func() error {
		return errors.Wrap(db.primary.CheckContext(gctx), "primary index")
	})
	g.Go(func() error {
		return errors.Wrap(db.secondary.CheckContext(gctx), "secondary index")
	})
	if err := g.Wait(); err != nil {
		return err
	}

	primaryCount := 0
	err := db.primary.Scan(bptree.ScanOptions[uuid.UUID]{}, func(id uuid.UUID, recordId uint32) (bool, error) {
		if err := ctx.Err(); err != nil {
			return true, err
		}
		a, err := db.load(recordId)
		if err != nil {
			return true, err
		}
		if a.ID != id {
			return true, errors.Wrapf(customerrors.ErrDataIntegrity,
				"primary index maps %s to record %d of account %s", id, recordId, a.ID)
		}
		primaryCount++
		return false, nil
	})
	if err != nil {
		return err
	}

	secondaryCount, err := db.secondary.Count()
	if err != nil {
		return err
	}
	if primaryCount != secondaryCount {
		return errors.Wrapf(customerrors.ErrDataIntegrity,
			"primary index holds %d accounts, secondary %d", primaryCount, secondaryCount)
	}
	return nil
}

// Close flushes and closes all three files.
func (db *Database) Close() error {
	var result error
	for _, closeFn := range []func() error{db.primary.Close, db.secondary.Close, db.records.Close} {
		if err := closeFn(); err != nil && result == nil {
			result = err
		}
	}
	return result
}

func (db *Database) find(id uuid.UUID) (uint32, *Account, error) {
	recordId, found, err := db.primary.Get(id)
	if err != nil {
		return 0, nil, err
	}
	if !found {
		return 0, nil, errors.Wrapf(customerrors.ErrKeyNotFound, "account %s", id)
	}

	a, err := db.load(recordId)
	return recordId, a, err
}

func (db *Database) load(recordId uint32) (*Account, error) {
	data, ok, err := db.records.Find(recordId)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(customerrors.ErrNotFound, "account record %d", recordId)
	}

	a := &Account{}
	if err := a.UnmarshalBinary(data); err != nil {
		return nil, errors.Wrapf(err, "account record %d", recordId)
	}
	return a, nil
}

func secondaryKey(a *Account) codec.StringInt {
	return codec.StringInt{S: a.FirstName, I: a.Age}
}

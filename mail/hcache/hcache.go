// Package hcache implements the durable per-folder header cache
// spec.md §4.7 describes: a small sqlite-backed key/value store keyed
// by UID, holding a versioned, gob-encoded Envelope+Body pair plus the
// folder's UIDVALIDITY/UIDNEXT/HIGHESTMODSEQ watermarks.
//
// Adapted from the teacher's spilldb/db package: Open/Init follow the
// same OpenConn-then-ExecScript-then-sqlitex.Open shape db.Open uses,
// and the per-row encode/decode follows LoadMsg's blob-to-iox.BufferFile
// pattern, here applied to a gob payload instead of a raw message blob.
package hcache

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	"github.com/neomutt/neomutt-sub011/mail"
)

// FormatVersion is bumped whenever the gob-encoded Entry shape changes
// incompatibly; a cache opened with a stale version is discarded and
// rebuilt rather than partially trusted (spec.md §4.7 "version check").
const FormatVersion = 1

const createSQL = `
CREATE TABLE IF NOT EXISTS Meta (
	Key   TEXT PRIMARY KEY,
	Value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS Headers (
	UID   INTEGER PRIMARY KEY,
	Entry BLOB NOT NULL
);
`

// Cache is one folder's header cache, backed by a single sqlite file.
type Cache struct {
	db *sqlitex.Pool
}

// Entry is the versioned payload stored per UID.
type Entry struct {
	Version  int
	Envelope *mail.Envelope
	Body     *mail.Body
	Flags    mail.Flag
	ModSeq   int64
}

// Open opens (creating if necessary) the header cache at path.
func Open(path string) (*Cache, error) {
	conn, err := sqlite.OpenConn(path, 0)
	if err != nil {
		return nil, fmt.Errorf("hcache: open %s: %w", path, err)
	}
	if err := sqlitex.ExecTransient(conn, "PRAGMA journal_mode=WAL;", nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("hcache: journal_mode: %w", err)
	}
	if err := sqlitex.ExecScript(conn, createSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("hcache: schema: %w", err)
	}
	if err := conn.Close(); err != nil {
		return nil, fmt.Errorf("hcache: close init conn: %w", err)
	}

	pool, err := sqlitex.Open(path, 0, 4)
	if err != nil {
		return nil, fmt.Errorf("hcache: pool: %w", err)
	}
	c := &Cache{db: pool}
	if err := c.checkVersion(); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) checkVersion() error {
	conn := c.db.Get(nil)
	defer c.db.Put(conn)

	got, ok, err := getMeta(conn, "FormatVersion")
	if err != nil {
		return err
	}
	if !ok {
		return setMeta(conn, "FormatVersion", fmt.Sprintf("%d", FormatVersion))
	}
	if got != fmt.Sprintf("%d", FormatVersion) {
		if err := sqlitex.ExecTransient(conn, "DELETE FROM Headers;", nil); err != nil {
			return err
		}
		if err := sqlitex.ExecTransient(conn, "DELETE FROM Meta;", nil); err != nil {
			return err
		}
		return setMeta(conn, "FormatVersion", fmt.Sprintf("%d", FormatVersion))
	}
	return nil
}

func getMeta(conn *sqlite.Conn, key string) (value string, ok bool, err error) {
	stmt := conn.Prep("SELECT Value FROM Meta WHERE Key = $key;")
	stmt.SetText("$key", key)
	defer stmt.Reset()
	hasRow, err := stmt.Step()
	if err != nil {
		return "", false, err
	}
	if !hasRow {
		return "", false, nil
	}
	return stmt.GetText("Value"), true, nil
}

func setMeta(conn *sqlite.Conn, key, value string) error {
	stmt := conn.Prep("INSERT INTO Meta (Key, Value) VALUES ($key, $value) ON CONFLICT(Key) DO UPDATE SET Value=$value;")
	stmt.SetText("$key", key)
	stmt.SetText("$value", value)
	defer stmt.Reset()
	_, err := stmt.Step()
	return err
}

// UIDValidity, UIDNext, and HighestModSeq read/write the folder's
// watermarks, stored as Meta rows under well-known keys so a UIDVALIDITY
// change (spec.md §4.3's "the defining invariant") can be detected
// before any UID-keyed row is trusted.
func (c *Cache) UIDValidity() (uint32, bool, error) {
	return c.metaUint32("UIDValidity")
}

func (c *Cache) SetUIDValidity(v uint32) error {
	return c.setMetaUint32("UIDValidity", v)
}

func (c *Cache) UIDNext() (uint32, bool, error) {
	return c.metaUint32("UIDNext")
}

func (c *Cache) SetUIDNext(v uint32) error {
	return c.setMetaUint32("UIDNext", v)
}

func (c *Cache) HighestModSeq() (int64, bool, error) {
	conn := c.db.Get(nil)
	defer c.db.Put(conn)
	s, ok, err := getMeta(conn, "HighestModSeq")
	if err != nil || !ok {
		return 0, ok, err
	}
	var v int64
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (c *Cache) SetHighestModSeq(v int64) error {
	conn := c.db.Get(nil)
	defer c.db.Put(conn)
	return setMeta(conn, "HighestModSeq", fmt.Sprintf("%d", v))
}

func (c *Cache) metaUint32(key string) (uint32, bool, error) {
	conn := c.db.Get(nil)
	defer c.db.Put(conn)
	s, ok, err := getMeta(conn, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	var v uint32
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (c *Cache) setMetaUint32(key string, v uint32) error {
	conn := c.db.Get(nil)
	defer c.db.Put(conn)
	return setMeta(conn, key, fmt.Sprintf("%d", v))
}

// Put stores (overwriting) the Entry for uid.
func (c *Cache) Put(uid uint32, e *Entry) error {
	e.Version = FormatVersion
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return fmt.Errorf("hcache: encode uid %d: %w", uid, err)
	}

	conn := c.db.Get(nil)
	defer c.db.Put(conn)
	stmt := conn.Prep("INSERT INTO Headers (UID, Entry) VALUES ($uid, $entry) ON CONFLICT(UID) DO UPDATE SET Entry=$entry;")
	stmt.SetInt64("$uid", int64(uid))
	stmt.SetBytes("$entry", buf.Bytes())
	defer stmt.Reset()
	_, err := stmt.Step()
	return err
}

// Get loads the Entry for uid, if present.
func (c *Cache) Get(uid uint32) (*Entry, bool, error) {
	conn := c.db.Get(nil)
	defer c.db.Put(conn)
	stmt := conn.Prep("SELECT Entry FROM Headers WHERE UID = $uid;")
	stmt.SetInt64("$uid", int64(uid))
	defer stmt.Reset()

	hasRow, err := stmt.Step()
	if err != nil {
		return nil, false, err
	}
	if !hasRow {
		return nil, false, nil
	}

	var e Entry
	if err := gob.NewDecoder(stmt.GetReader("Entry")).Decode(&e); err != nil {
		return nil, false, fmt.Errorf("hcache: decode uid %d: %w", uid, err)
	}
	return &e, true, nil
}

// Delete removes uid's entry, e.g. after an EXPUNGE reconciliation.
func (c *Cache) Delete(uid uint32) error {
	conn := c.db.Get(nil)
	defer c.db.Put(conn)
	stmt := conn.Prep("DELETE FROM Headers WHERE UID = $uid;")
	stmt.SetInt64("$uid", int64(uid))
	defer stmt.Reset()
	_, err := stmt.Step()
	return err
}

// Prune deletes every cached UID not present in keep, for reconciling
// against a fresh UID listing after a UIDVALIDITY change.
func (c *Cache) Prune(keep map[uint32]bool) error {
	conn := c.db.Get(nil)
	defer c.db.Put(conn)
	stmt := conn.Prep("SELECT UID FROM Headers;")
	var stale []int64
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			stmt.Reset()
			return err
		}
		if !hasRow {
			break
		}
		uid := stmt.GetInt64("UID")
		if !keep[uint32(uid)] {
			stale = append(stale, uid)
		}
	}
	stmt.Reset()

	del := conn.Prep("DELETE FROM Headers WHERE UID = $uid;")
	for _, uid := range stale {
		del.SetInt64("$uid", uid)
		if _, err := del.Step(); err != nil {
			del.Reset()
			return err
		}
		del.Reset()
	}
	return nil
}

// Close releases the underlying sqlite connection pool.
func (c *Cache) Close() error {
	return c.db.Close()
}

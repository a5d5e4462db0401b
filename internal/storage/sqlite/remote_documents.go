package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/codetrek/syntrix-client/pkg/model"
)

const (
	docTypeDocument        = 1
	docTypeNoDocument      = 2
	docTypeUnknownDocument = 3
)

type remoteDocumentCache struct {
	p *Persistence
}

func (c *remoteDocumentCache) Add(doc model.MaybeDocument) error {
	docType, fields, err := encodeMaybeDocument(doc)
	if err != nil {
		return err
	}
	_, err = c.p.querier().Exec(
		`INSERT OR REPLACE INTO remote_documents (path, parent_path, doc_type, version_micros, fields) VALUES (?, ?, ?, ?, ?)`,
		doc.Key().String(), doc.Key().CollectionPath().String(), docType, doc.Version().Micros(), fields)
	if err != nil {
		return fmt.Errorf("failed to write remote document: %w", err)
	}
	return nil
}

func (c *remoteDocumentCache) Remove(key model.DocumentKey) error {
	if _, err := c.p.querier().Exec(`DELETE FROM remote_documents WHERE path = ?`, key.String()); err != nil {
		return fmt.Errorf("failed to remove remote document: %w", err)
	}
	return nil
}

func (c *remoteDocumentCache) Get(key model.DocumentKey) (model.MaybeDocument, error) {
	row := c.p.querier().QueryRow(
		`SELECT doc_type, version_micros, fields FROM remote_documents WHERE path = ?`, key.String())
	var docType int
	var micros int64
	var fields []byte
	if err := row.Scan(&docType, &micros, &fields); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read remote document: %w", err)
	}
	return decodeMaybeDocument(key, docType, micros, fields)
}

func (c *remoteDocumentCache) GetAll(keys []model.DocumentKey) (*model.MaybeDocumentMap, error) {
	out := model.NewMaybeDocumentMap()
	for _, key := range keys {
		doc, err := c.Get(key)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			out.Set(key, doc)
		}
	}
	return out, nil
}

func (c *remoteDocumentCache) GetMatching(query model.Query) (*model.DocumentMap, error) {
	out := model.NewDocumentMap()
	if query.IsDocumentQuery() {
		key, err := query.DocumentKey()
		if err != nil {
			return nil, err
		}
		maybeDoc, err := c.Get(key)
		if err != nil {
			return nil, err
		}
		if doc, ok := maybeDoc.(*model.Document); ok && query.Matches(doc) {
			out.Set(key, doc)
		}
		return out, nil
	}

	rows, err := c.p.querier().Query(
		`SELECT path, version_micros, fields FROM remote_documents WHERE parent_path = ? AND doc_type = ? ORDER BY path`,
		query.Path.String(), docTypeDocument)
	if err != nil {
		return nil, fmt.Errorf("failed to scan remote documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var path string
		var micros int64
		var fields []byte
		if err := rows.Scan(&path, &micros, &fields); err != nil {
			return nil, fmt.Errorf("failed to scan remote document row: %w", err)
		}
		key, err := model.ParseDocumentKey(path)
		if err != nil {
			return nil, fmt.Errorf("%w: bad document path %q", model.ErrCorruption, path)
		}
		maybeDoc, err := decodeMaybeDocument(key, docTypeDocument, micros, fields)
		if err != nil {
			return nil, err
		}
		if doc := maybeDoc.(*model.Document); query.Matches(doc) {
			out.Set(key, doc)
		}
	}
	return out, rows.Err()
}

func encodeMaybeDocument(doc model.MaybeDocument) (int, []byte, error) {
	switch d := doc.(type) {
	case *model.Document:
		fields, err := json.Marshal(d.Fields)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode document fields: %w", err)
		}
		return docTypeDocument, fields, nil
	case *model.NoDocument:
		return docTypeNoDocument, nil, nil
	case *model.UnknownDocument:
		return docTypeUnknownDocument, nil, nil
	default:
		return 0, nil, fmt.Errorf("unknown document variant %T", doc)
	}
}

func decodeMaybeDocument(key model.DocumentKey, docType int, micros int64, fields []byte) (model.MaybeDocument, error) {
	version := model.VersionFromMicros(micros)
	switch docType {
	case docTypeDocument:
		var decoded map[string]interface{}
		if err := json.Unmarshal(fields, &decoded); err != nil {
			return nil, fmt.Errorf("%w: bad document fields for %q: %v", model.ErrCorruption, key.String(), err)
		}
		return &model.Document{DocKey: key, DocVersion: version, Fields: decoded}, nil
	case docTypeNoDocument:
		return &model.NoDocument{DocKey: key, DocVersion: version}, nil
	case docTypeUnknownDocument:
		return &model.UnknownDocument{DocKey: key, DocVersion: version}, nil
	default:
		return nil, fmt.Errorf("%w: unknown document type %d for %q", model.ErrCorruption, docType, key.String())
	}
}

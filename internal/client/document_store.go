package client

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pesio-ai/be-ojt-placements/internal/domain/placement"
	"github.com/pesio-ai/be-ojt-placements/internal/errors"
)

// ConnectMongo dials MongoDB, pings it and returns the named database.
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client.Database(database), nil
}

// GridFSDocumentStore keeps requirement files in a GridFS bucket. File
// references are the hex ObjectIDs of the stored files.
type GridFSDocumentStore struct {
	bucket *gridfs.Bucket
}

// NewGridFSDocumentStore opens the named bucket on db.
func NewGridFSDocumentStore(db *mongo.Database, bucket string) (*GridFSDocumentStore, error) {
	b, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucket))
	if err != nil {
		return nil, fmt.Errorf("open gridfs bucket %s: %w", bucket, err)
	}
	return &GridFSDocumentStore{bucket: b}, nil
}

// Store uploads content and returns its file reference.
func (s *GridFSDocumentStore) Store(_ context.Context, content []byte, doc placement.Document) (string, error) {
	opts := options.GridFSUpload().SetMetadata(bson.D{
		{Key: "application_id", Value: doc.ApplicationID},
		{Key: "requirement_type", Value: string(doc.Type)},
		{Key: "content_type", Value: doc.ContentType},
	})
	id, err := s.bucket.UploadFromStream(doc.Filename, bytes.NewReader(content), opts)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorage, "failed to store document")
	}
	return id.Hex(), nil
}

// Delete removes a stored file. Unknown references are ignored.
func (s *GridFSDocumentStore) Delete(_ context.Context, ref string) error {
	id, err := primitive.ObjectIDFromHex(ref)
	if err != nil {
		return errors.InvalidInput("file_ref", "invalid document reference")
	}
	if err := s.bucket.Delete(id); err != nil && !stderrors.Is(err, gridfs.ErrFileNotFound) {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to delete document")
	}
	return nil
}

// MemoryDocumentStore keeps files in process memory. It backs local runs
// without MongoDB and tests.
type MemoryDocumentStore struct {
	mu    sync.Mutex
	files map[string][]byte
	fail  error
}

// NewMemoryDocumentStore creates an empty store.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{files: make(map[string][]byte)}
}

// FailWith makes every Store call fail with err until cleared with nil.
func (s *MemoryDocumentStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *MemoryDocumentStore) Store(_ context.Context, content []byte, _ placement.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", errors.Wrap(s.fail, errors.ErrCodeStorage, "failed to store document")
	}
	ref := uuid.NewString()
	s.files[ref] = bytes.Clone(content)
	return ref, nil
}

func (s *MemoryDocumentStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, ref)
	return nil
}

// Has reports whether ref is stored.
func (s *MemoryDocumentStore) Has(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[ref]
	return ok
}

// Len returns the number of stored files.
func (s *MemoryDocumentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/gabriel-vasile/mimetype"

	"github.com/javajoker/provenance-backend/internal/apperr"
	"github.com/javajoker/provenance-backend/internal/config"
)

// AllowedUploadTypes lists the content types accepted for product media and
// documents.
var AllowedUploadTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
}

type StoredObject struct {
	Hash string `json:"hash"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ContentStore is a content-addressed blob store.
type ContentStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (*StoredObject, error)
	URL(hash string) string
}

type StorageService struct {
	store      ContentStore
	maxSize    int64
	gatewayURL string
	httpClient *http.Client
}

// ProductMetadata is the JSON document referenced by a product's metadata hash.
type ProductMetadata struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SerialNumber string   `json:"serialNumber"`
	SKU          string   `json:"sku"`
	Images       []string `json:"images"`
}

func NewStorageService(cfg *config.Config) (*StorageService, error) {
	var store ContentStore
	switch cfg.Storage.Provider {
	case "s3":
		s3Store, err := NewS3Store(cfg.AWS)
		if err != nil {
			return nil, err
		}
		store = s3Store
	default:
		store = NewLighthouseStore(cfg.Storage)
	}
	return NewStorageServiceWith(store, cfg.Storage.MaxUploadSize, cfg.Storage.GatewayURL), nil
}

func NewStorageServiceWith(store ContentStore, maxSize int64, gatewayURL string) *StorageService {
	return &StorageService{
		store:      store,
		maxSize:    maxSize,
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Upload validates r and stores it, returning its content hash.
func (s *StorageService) Upload(ctx context.Context, name string, r io.Reader) (*StoredObject, error) {
	reader := r
	if s.maxSize > 0 {
		reader = io.LimitReader(r, s.maxSize+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, apperr.Validation("file %s is empty", name)
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return nil, apperr.Validation("file %s is too large, maximum size is %dMB", name, s.maxSize/(1024*1024))
	}

	detected := mimetype.Detect(data)
	contentType := ""
	for _, allowed := range AllowedUploadTypes {
		if detected.Is(allowed) {
			contentType = allowed
			break
		}
	}
	if contentType == "" {
		return nil, apperr.Validation("file %s has unsupported type %s", name, detected.String())
	}

	obj, err := s.store.Put(ctx, name, data, contentType)
	if err != nil {
		return nil, apperr.Upstream(err, "failed to store %s", name)
	}
	return obj, nil
}

// Store saves a document produced by the service itself, skipping the
// upload type checks.
func (s *StorageService) Store(ctx context.Context, name string, data []byte) (*StoredObject, error) {
	obj, err := s.store.Put(ctx, name, data, mimetype.Detect(data).String())
	if err != nil {
		return nil, apperr.Upstream(err, "failed to store %s", name)
	}
	return obj, nil
}

func (s *StorageService) URL(hash string) string {
	return s.store.URL(hash)
}

// FetchMetadata downloads and decodes the metadata document for hash from
// the IPFS gateway.
func (s *StorageService) FetchMetadata(ctx context.Context, hash string) (*ProductMetadata, error) {
	if hash == "" {
		return nil, fmt.Errorf("empty metadata hash")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.gatewayURL+"/"+hash, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata %s: %w", hash, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch metadata %s: gateway returned %d", hash, resp.StatusCode)
	}

	return decodeProductMetadata(resp.Body)
}

// decodeProductMetadata accepts both the flat layout and the
// {product, files} layout written by the upload flow.
func decodeProductMetadata(r io.Reader) (*ProductMetadata, error) {
	var doc struct {
		ProductMetadata
		Product *ProductMetadata `json:"product"`
		Files   struct {
			Images []struct {
				URL string `json:"url"`
			} `json:"images"`
		} `json:"files"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid metadata document: %w", err)
	}

	meta := doc.ProductMetadata
	if meta.Name == "" && doc.Product != nil {
		meta = *doc.Product
	}
	if len(meta.Images) == 0 {
		for _, img := range doc.Files.Images {
			if img.URL != "" {
				meta.Images = append(meta.Images, img.URL)
			}
		}
	}
	return &meta, nil
}

// LighthouseStore pins content on IPFS through the Lighthouse node API.
type LighthouseStore struct {
	apiKey     string
	endpoint   string
	gatewayURL string
	client     *http.Client
}

func NewLighthouseStore(cfg config.StorageConfig) *LighthouseStore {
	return &LighthouseStore{
		apiKey:     cfg.LighthouseAPIKey,
		endpoint:   strings.TrimRight(cfg.LighthouseURL, "/"),
		gatewayURL: strings.TrimRight(cfg.GatewayURL, "/"),
		client:     &http.Client{Timeout: 2 * time.Minute},
	}
}

func (l *LighthouseStore) Put(ctx context.Context, name string, data []byte, contentType string) (*StoredObject, error) {
	if l.apiKey == "" {
		return nil, fmt.Errorf("lighthouse API key is not configured")
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint+"/api/v0/add", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+l.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lighthouse upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("lighthouse upload failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Name string `json:"Name"`
		Hash string `json:"Hash"`
		Size string `json:"Size"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid lighthouse response: %w", err)
	}
	if out.Hash == "" {
		return nil, fmt.Errorf("lighthouse response has no hash")
	}

	size, err := strconv.ParseInt(out.Size, 10, 64)
	if err != nil {
		size = int64(len(data))
	}

	return &StoredObject{
		Hash: out.Hash,
		Name: name,
		Size: size,
		Type: contentType,
		URL:  l.URL(out.Hash),
	}, nil
}

func (l *LighthouseStore) URL(hash string) string {
	return l.gatewayURL + "/" + hash
}

// S3Store keys objects by the hex sha256 of their content.
type S3Store struct {
	client *s3.S3
	bucket string
	region string
	cdnURL string
}

func NewS3Store(cfg config.AWSConfig) (*S3Store, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Store{
		client: s3.New(sess),
		bucket: cfg.S3Bucket,
		region: cfg.Region,
		cdnURL: strings.TrimRight(cfg.CloudFrontURL, "/"),
	}, nil
}

func (s *S3Store) Put(ctx context.Context, name string, data []byte, contentType string) (*StoredObject, error) {
	hash := contentHash(data)

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(hash),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      map[string]*string{"original-name": aws.String(name)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &StoredObject{
		Hash: hash,
		Name: name,
		Size: int64(len(data)),
		Type: contentType,
		URL:  s.URL(hash),
	}, nil
}

func (s *S3Store) URL(hash string) string {
	if s.cdnURL != "" {
		return fmt.Sprintf("%s/%s", s.cdnURL, hash)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, hash)
}

// MemoryStore keeps objects in memory.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	baseURL string
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte), baseURL: strings.TrimRight(baseURL, "/")}
}

func (m *MemoryStore) Put(ctx context.Context, name string, data []byte, contentType string) (*StoredObject, error) {
	hash := contentHash(data)

	m.mu.Lock()
	m.objects[hash] = append([]byte(nil), data...)
	m.mu.Unlock()

	return &StoredObject{Hash: hash, Name: name, Size: int64(len(data)), Type: contentType, URL: m.URL(hash)}, nil
}

func (m *MemoryStore) URL(hash string) string {
	return m.baseURL + "/" + hash
}

func (m *MemoryStore) Get(hash string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[hash]
	return data, ok
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

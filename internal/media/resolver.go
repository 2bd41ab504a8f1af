package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/medspa-inbox/internal/observability/metrics"
	"github.com/wolfman30/medspa-inbox/internal/whatsapp"
)

const (
	// CanonicalAudioType is what every non-mpeg audio attachment is converted to.
	CanonicalAudioType = "audio/mpeg"

	defaultContentType  = "application/octet-stream"
	defaultFetchTimeout = 30 * time.Second
	defaultCacheTTL     = 5 * time.Minute
	cacheKeyPrefix      = "inbox:media:"
)

// ErrInvalidMediaID is returned for an empty media id.
var ErrInvalidMediaID = errors.New("media: media id is required")

// FetchError reports that both byte-fetch attempts failed. Status and Body
// come from the terminal attempt; a transport failure is reported as 502 and
// an oversized body as 413 without a retry.
type FetchError struct {
	Status int
	Body   string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("media: fetch failed (status %d)", e.Status)
}

// GraphClient is the part of whatsapp.Client the resolver uses.
type GraphClient interface {
	MediaMetadata(ctx context.Context, mediaID string) (*whatsapp.MediaMetadata, error)
	Download(ctx context.Context, rawURL string, placement whatsapp.CredentialPlacement) (*whatsapp.DownloadResult, error)
}

// Transcoder converts audio bytes to CanonicalAudioType.
type Transcoder interface {
	Transcode(ctx context.Context, data []byte) ([]byte, error)
}

// Result is a resolved attachment ready to stream to a client.
type Result struct {
	Data        []byte
	ContentType string
	Transcoded  bool
}

// Options configures a Resolver. Redis, Transcoder and Metrics are optional.
type Options struct {
	Redis        *redis.Client
	CacheTTL     time.Duration
	FetchTimeout time.Duration
	Transcoder   Transcoder
	Metrics      *metrics.InboxMetrics
	Logger       *slog.Logger
	Tracer       trace.Tracer
}

// Resolver turns an opaque media id into bytes.
type Resolver struct {
	client       GraphClient
	redis        *redis.Client
	cacheTTL     time.Duration
	fetchTimeout time.Duration
	transcoder   Transcoder
	metrics      *metrics.InboxMetrics
	logger       *slog.Logger
	tracer       trace.Tracer
}

func NewResolver(client GraphClient, opts Options) *Resolver {
	if client == nil {
		panic("media: graph client cannot be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("inbox.internal.media")
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Resolver{
		client:       client,
		redis:        opts.Redis,
		cacheTTL:     ttl,
		fetchTimeout: timeout,
		transcoder:   opts.Transcoder,
		metrics:      opts.Metrics,
		logger:       logger,
		tracer:       tracer,
	}
}

type cachedMetadata struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// Resolve looks up the media URL, fetches the bytes (query credential first,
// bearer header second) and converts non-mpeg audio. Cancellation of ctx is
// not propagated to provider calls; each call gets its own deadline.
func (r *Resolver) Resolve(ctx context.Context, mediaID string) (*Result, error) {
	mediaID = strings.TrimSpace(mediaID)
	if mediaID == "" {
		return nil, ErrInvalidMediaID
	}
	ctx, span := r.tracer.Start(ctx, "media.resolve", trace.WithAttributes(
		attribute.String("inbox.media_id", mediaID),
	))
	defer span.End()
	callCtx := context.WithoutCancel(ctx)

	meta, err := r.metadata(callCtx, mediaID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	res, err := r.fetch(callCtx, meta.URL)
	if err != nil {
		span.RecordError(err)
		r.evict(callCtx, mediaID)
		return nil, err
	}

	contentType := NormalizeContentType(res.ContentType)
	if contentType == "" {
		contentType = NormalizeContentType(meta.MimeType)
	}
	if contentType == "" {
		contentType = defaultContentType
	}
	out := &Result{Data: res.Body, ContentType: contentType}
	span.SetAttributes(attribute.String("inbox.media_content_type", contentType))

	if NeedsTranscode(contentType) && r.transcoder != nil {
		r.transcode(callCtx, mediaID, out)
	}
	return out, nil
}

func (r *Resolver) metadata(ctx context.Context, mediaID string) (cachedMetadata, error) {
	if cached, ok := r.cached(ctx, mediaID); ok {
		return cached, nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()
	meta, err := r.client.MediaMetadata(lookupCtx, mediaID)
	if err != nil {
		return cachedMetadata{}, err
	}
	out := cachedMetadata{URL: meta.URL, MimeType: meta.MimeType}
	r.store(ctx, mediaID, out)
	return out, nil
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) (*whatsapp.DownloadResult, error) {
	attempts := []whatsapp.CredentialPlacement{whatsapp.CredentialInQuery, whatsapp.CredentialInHeader}
	var terminal *FetchError
	for i, placement := range attempts {
		attempt := fmt.Sprintf("%d", i+1)
		res, err := r.download(ctx, rawURL, placement)
		switch {
		case errors.Is(err, whatsapp.ErrMediaTooLarge):
			// A second attempt would fetch the same bytes.
			r.metrics.ObserveMediaFetch(attempt, "too_large")
			r.logger.Warn("media fetch exceeded size limit", "attempt", attempt, "error", err)
			return nil, &FetchError{Status: http.StatusRequestEntityTooLarge, Body: err.Error()}
		case err != nil:
			r.metrics.ObserveMediaFetch(attempt, "error")
			r.logger.Warn("media fetch attempt failed", "attempt", attempt, "error", err)
			terminal = &FetchError{Status: http.StatusBadGateway, Body: err.Error()}
		case !res.OK():
			r.metrics.ObserveMediaFetch(attempt, "status")
			r.logger.Warn("media fetch attempt rejected", "attempt", attempt, "status", res.Status)
			terminal = &FetchError{Status: res.Status, Body: string(res.Body)}
		default:
			r.metrics.ObserveMediaFetch(attempt, "ok")
			return res, nil
		}
	}
	return nil, terminal
}

func (r *Resolver) download(ctx context.Context, rawURL string, placement whatsapp.CredentialPlacement) (*whatsapp.DownloadResult, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()
	return r.client.Download(fetchCtx, rawURL, placement)
}

func (r *Resolver) transcode(ctx context.Context, mediaID string, out *Result) {
	ctx, span := r.tracer.Start(ctx, "media.transcode", trace.WithAttributes(
		attribute.String("inbox.media_source_type", out.ContentType),
	))
	defer span.End()

	start := time.Now()
	converted, err := r.transcoder.Transcode(ctx, out.Data)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		span.RecordError(err)
		r.metrics.ObserveTranscode("failed", elapsed)
		r.logger.Warn("audio transcode failed; serving original",
			"media_id", mediaID, "content_type", out.ContentType, "error", err)
		return
	}
	r.metrics.ObserveTranscode("ok", elapsed)
	out.Data = converted
	out.ContentType = CanonicalAudioType
	out.Transcoded = true
}

func (r *Resolver) cached(ctx context.Context, mediaID string) (cachedMetadata, bool) {
	if r.redis == nil {
		return cachedMetadata{}, false
	}
	data, err := r.redis.Get(ctx, cacheKey(mediaID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("media cache read failed", "error", err)
		}
		return cachedMetadata{}, false
	}
	var meta cachedMetadata
	if err := json.Unmarshal(data, &meta); err != nil || meta.URL == "" {
		return cachedMetadata{}, false
	}
	return meta, true
}

func (r *Resolver) store(ctx context.Context, mediaID string, meta cachedMetadata) {
	if r.redis == nil {
		return
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return
	}
	if err := r.redis.Set(ctx, cacheKey(mediaID), data, r.cacheTTL).Err(); err != nil {
		r.logger.Warn("media cache write failed", "error", err)
	}
}

func (r *Resolver) evict(ctx context.Context, mediaID string) {
	if r.redis == nil {
		return
	}
	if err := r.redis.Del(ctx, cacheKey(mediaID)).Err(); err != nil {
		r.logger.Warn("media cache evict failed", "error", err)
	}
}

func cacheKey(mediaID string) string {
	return cacheKeyPrefix + mediaID
}

// NormalizeContentType lowercases a media type and drops its parameters.
func NormalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// NeedsTranscode reports whether an audio type must be converted.
func NeedsTranscode(contentType string) bool {
	return strings.HasPrefix(contentType, "audio/") && contentType != CanonicalAudioType
}

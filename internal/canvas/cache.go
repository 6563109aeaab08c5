package canvas

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"sync/atomic"

	"github.com/dyluth/mosaic/internal/palette"
)

var (
	// ErrNoTemplate is returned when no template has ever been loaded.
	ErrNoTemplate = errors.New("no template loaded")

	// ErrNoSnapshot is returned when the board has never been fetched successfully.
	ErrNoSnapshot = errors.New("no board snapshot available")
)

// TemplateLoader supplies the template and the canvas offsets.
type TemplateLoader interface {
	Load(ctx context.Context) (*Template, Offsets, error)
}

// BoardFetcher returns the full stitched canvas image.
type BoardFetcher interface {
	FetchBoard(ctx context.Context, token string) (image.Image, error)
}

// Target is a discrepancy resolved against the template position it was
// computed from.
type Target struct {
	Local    image.Point
	Absolute image.Point
	Visual   image.Point
	ColorID  int
}

// Cache owns the template, the board snapshot and the discrepancy queue.
// All reads and writes of those three happen under mu; the staleness flags are
// atomics so the coordinator can raise them without contending for the lock.
type Cache struct {
	mapper  *palette.Mapper
	loader  TemplateLoader
	fetcher BoardFetcher

	mu       sync.Mutex
	template *Template
	target   *palette.Indexed
	offsets  Offsets
	origin   image.Point
	snapshot *image.NRGBA
	queue    []Discrepancy

	templateOutdated atomic.Bool
	boardOutdated    atomic.Bool
}

// NewCache creates an empty cache. Call Load before handing it to workers.
func NewCache(mapper *palette.Mapper, loader TemplateLoader, fetcher BoardFetcher) *Cache {
	return &Cache{
		mapper:  mapper,
		loader:  loader,
		fetcher: fetcher,
	}
}

// Load performs the initial template load. Failure here is fatal to the caller.
func (c *Cache) Load(ctx context.Context) error {
	tmpl, offsets, err := c.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.installTemplate(tmpl, offsets)
	return nil
}

// MarkTemplateOutdated requests a template reload on the next access.
func (c *Cache) MarkTemplateOutdated() { c.templateOutdated.Store(true) }

// MarkBoardOutdated requests a board fetch on the next access.
func (c *Cache) MarkBoardOutdated() { c.boardOutdated.Store(true) }

// Refresh reloads whatever is stale. token authenticates the board fetch and
// worker names the caller in logs.
func (c *Cache) Refresh(ctx context.Context, token, worker string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx, token, worker)
}

// Next refreshes stale data, recomputes the queue if it is empty, and pops one
// entry, all in a single critical section. ok is false when the board already
// matches the template.
func (c *Cache) Next(ctx context.Context, token, worker string) (t Target, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The lock may have been held through another worker's board fetch.
	if err := ctx.Err(); err != nil {
		return Target{}, false, err
	}

	if err := c.refreshLocked(ctx, token, worker); err != nil {
		return Target{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return Target{}, false, err
	}

	if err := c.computeLocked(worker); err != nil {
		return Target{}, false, err
	}

	if len(c.queue) == 0 {
		return Target{}, false, nil
	}

	last := len(c.queue) - 1
	d := c.queue[last]
	c.queue = c.queue[:last]

	abs := c.origin.Add(d.Local)
	return Target{
		Local:    d.Local,
		Absolute: abs,
		Visual:   abs.Add(c.offsets.Visual),
		ColorID:  d.ColorID,
	}, true, nil
}

// Compute fills the queue from the current snapshot if it is empty and returns
// the number of pending entries. A populated queue is left untouched.
func (c *Cache) Compute(worker string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.template == nil {
		return 0, ErrNoTemplate
	}
	if err := c.computeLocked(worker); err != nil {
		return 0, err
	}
	return len(c.queue), nil
}

// Pending returns the number of queued discrepancies.
func (c *Cache) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Bounds returns the absolute canvas rectangle the template covers.
func (c *Cache) Bounds() image.Rectangle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.template == nil {
		return image.Rectangle{}
	}
	return image.Rectangle{Min: c.origin, Max: c.origin.Add(c.template.Size())}
}

func (c *Cache) refreshLocked(ctx context.Context, token, worker string) error {
	if c.templateOutdated.Swap(false) {
		log.Printf("[DEBUG] worker='%s' Updating template image and canvas offsets", worker)
		tmpl, offsets, err := c.loader.Load(ctx)
		if err != nil {
			// Skipped for this cycle; the coordinator raises the flag again later.
			log.Printf("[WARN] worker='%s' Template reload failed, keeping previous template: %v", worker, err)
		} else {
			c.installTemplate(tmpl, offsets)
			log.Printf("[INFO] worker='%s' Template image and canvas offsets updated", worker)
		}
	}

	if c.template == nil {
		return ErrNoTemplate
	}

	if c.boardOutdated.Swap(false) || c.snapshot == nil {
		log.Printf("[DEBUG] worker='%s' Updating board image", worker)
		board, err := c.fetcher.FetchBoard(ctx, token)
		if err != nil {
			if c.snapshot == nil {
				return fmt.Errorf("%w: %v", ErrNoSnapshot, err)
			}
			log.Printf("[WARN] worker='%s' Board fetch failed, keeping previous snapshot: %v", worker, err)
			return nil
		}

		c.snapshot = Crop(board, image.Rectangle{Min: c.origin, Max: c.origin.Add(c.template.Size())})
		c.queue = nil
		log.Printf("[INFO] worker='%s' Board image updated", worker)
	}

	return nil
}

// computeLocked rebuilds the queue only when it is empty.
func (c *Cache) computeLocked(worker string) error {
	if len(c.queue) > 0 {
		log.Printf("[DEBUG] worker='%s' Board is still up-to-date", worker)
		return nil
	}
	if c.snapshot == nil {
		return ErrNoSnapshot
	}

	queue, err := diffIndexed(c.mapper, c.template, c.target, c.snapshot)
	if err != nil {
		return err
	}
	c.queue = queue
	log.Printf("[DEBUG] worker='%s' Recomputed discrepancies: %d", worker, len(queue))
	return nil
}

// installTemplate swaps in a new template. The snapshot is dropped because its
// bounds were derived from the old template position.
func (c *Cache) installTemplate(tmpl *Template, offsets Offsets) {
	c.template = tmpl
	c.target = c.mapper.Quantize(tmpl.Image)
	c.offsets = offsets
	c.origin = tmpl.Area(offsets).Min
	c.snapshot = nil
	c.queue = nil
}

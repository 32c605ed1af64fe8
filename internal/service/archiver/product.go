package archiver

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/subscription-archiver/internal/domain"
	"github.com/vertextoedge/subscription-archiver/internal/service/document"
)

// product carries the state of one product traversal.
// fragments is created fresh for every product and dropped when it ends.
type product struct {
	id        string
	summary   *domain.ProductSummary
	dir       string
	fragments *domain.TextFragments
	record    *domain.ProductRecord
}

// ArchiveProduct fetches one product's summary and, unless it was already
// archived, downloads every section and renders its text document
func (a *Archiver) ArchiveProduct(ctx context.Context, productID string) error {
	rec := &domain.ProductRecord{
		RunID:     a.currentRunID(),
		ProductID: productID,
		StartedAt: time.Now(),
	}
	err := a.archiveProduct(ctx, productID, rec)
	a.recordProduct(rec)
	return err
}

func (a *Archiver) archiveProduct(ctx context.Context, productID string, rec *domain.ProductRecord) error {
	summary, err := a.catalog.Summary(ctx, a.accessToken(), productID)
	if err != nil {
		if ctx.Err() != nil {
			rec.Fail(domain.ProductStatusFailed, ctx.Err())
			return ctx.Err()
		}
		serr := &domain.SummaryFetchError{ProductID: productID, Err: err}
		rec.Fail(domain.ProductStatusSummaryFailed, serr)
		a.logger.Warn("failed to fetch product summary, skipping",
			zap.String("product_id", productID),
			zap.Error(err))
		return serr
	}

	p := &product{
		id:      productID,
		summary: summary,
		dir:     a.archive.ProductDir(productID, summary.Title),
		record:  rec,
	}
	rec.Title = summary.Title
	rec.Dir = p.dir

	// Existence is checked before the snapshot write creates the directory
	skip := a.guard.ShouldSkip(productID, summary.Title)

	if err := a.archive.WriteSummary(p.dir, summary.Raw); err != nil {
		rec.Fail(domain.ProductStatusFailed, err)
		return fmt.Errorf("product %s: %w", productID, err)
	}

	if skip {
		rec.Status = domain.ProductStatusSkipped
		a.logger.Info("product already archived",
			zap.String("product_id", productID),
			zap.String("title", summary.Title),
			zap.String("dir", p.dir))
		return nil
	}

	a.logger.Info("archiving product",
		zap.String("product_id", productID),
		zap.String("title", summary.Title),
		zap.String("type", summary.Type),
		zap.Int("chapters", len(summary.TOC.Chapters)),
		zap.Int("sections", summary.SectionCount()))

	p.fragments = domain.NewTextFragments()

	if err := a.walkChapters(ctx, p); err != nil {
		rec.Fail(domain.ProductStatusFailed, err)
		return err
	}

	if err := a.produceDocument(ctx, p); err != nil {
		rec.Fail(domain.ProductStatusFailed, err)
		return err
	}

	rec.Status = domain.ProductStatusArchived
	return nil
}

func (a *Archiver) walkChapters(ctx context.Context, p *product) error {
	chapters := p.summary.TOC.Chapters
	return sequential(ctx, len(chapters), func(ctx context.Context, ci int) error {
		chapter := &chapters[ci]
		chapterDir := p.dir
		if !p.summary.IsFlat() {
			chapterDir = a.archive.ChildDir(p.dir, ci+1, chapter.Title)
			if err := a.archive.EnsureDir(chapterDir); err != nil {
				return err
			}
		}

		a.logger.Info("chapter",
			zap.String("product_id", p.id),
			zap.String("title", chapter.Title),
			zap.Int("sections", len(chapter.Sections)))

		return sequential(ctx, len(chapter.Sections), func(ctx context.Context, si int) error {
			section := &chapter.Sections[si]
			if err := a.archiveSection(ctx, p, chapter, section, chapterDir, si); err != nil {
				return &domain.SectionError{
					ProductID: p.id,
					ChapterID: chapter.ID,
					SectionID: section.ID,
					Err:       err,
				}
			}
			return nil
		})
	})
}

// archiveSection fetches the section detail, merges its cookies and then
// downloads the primary asset and captions concurrently
func (a *Archiver) archiveSection(ctx context.Context, p *product, chapter *domain.Chapter, section *domain.Section, chapterDir string, index int) error {
	if !section.IsSupported() {
		return &domain.UnsupportedContentError{SectionID: section.ID, ContentType: section.ContentType}
	}

	sectionDir := chapterDir
	if !p.summary.IsFlat() {
		sectionDir = a.archive.ChildDir(chapterDir, index+1, section.Title)
		if err := a.archive.EnsureDir(sectionDir); err != nil {
			return err
		}
	}

	a.logger.Info("downloading section",
		zap.String("product_id", p.id),
		zap.String("title", section.Title),
		zap.String("content_type", section.ContentType))

	detail, cookies, site, err := a.catalog.SectionDetail(ctx, a.accessToken(), p.id, chapter.ID, section.ID)
	if err != nil {
		return fmt.Errorf("failed to get section info: %w", err)
	}

	// Every cookie is applied, in order, before any asset request starts
	if err := a.jar.Merge(site, cookies); err != nil {
		return err
	}

	tasks, err := a.buildTasks(section, detail, sectionDir)
	if err != nil {
		return err
	}

	bodies := make([][]byte, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		g.Go(func() error {
			body, err := a.fetcher.Fetch(gctx, task)
			if err != nil {
				return err
			}
			bodies[i] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, task := range tasks {
		if task.Buffered() {
			p.fragments.Add(domain.TextFragment(bodies[i]))
		}
	}
	p.record.Sections++
	p.record.Assets += len(tasks)
	return nil
}

// buildTasks resolves the primary asset and captions of a section.
// HTML targets are buffered; everything else streams into dir.
func (a *Archiver) buildTasks(section *domain.Section, detail *domain.AssetDescriptor, dir string) ([]domain.DownloadTask, error) {
	token := a.accessToken()

	primaryHeader := http.Header{}
	if section.IsVideo() {
		primaryHeader.Set("Authorization", "Bearer "+token)
		primaryHeader.Set("Range", "bytes=0-")
	}

	primary, err := newTask(detail.URL, dir, primaryHeader)
	if err != nil {
		return nil, err
	}
	tasks := []domain.DownloadTask{primary}

	for _, c := range detail.Captions {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)

		task, err := newTask(c.Location, dir, header)
		if err != nil {
			return nil, err
		}
		task.Caption = true
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func newTask(rawURL, dir string, header http.Header) (domain.DownloadTask, error) {
	task := domain.DownloadTask{URL: rawURL, Header: header}
	if domain.IsHTMLAsset(rawURL) {
		return task, nil
	}

	name, err := domain.AssetFileName(rawURL)
	if err != nil {
		return task, fmt.Errorf("invalid asset url %q: %w", rawURL, err)
	}
	task.Destination = filepath.Join(dir, name)
	return task, nil
}

// produceDocument assembles and renders the product's text, if any was collected
func (a *Archiver) produceDocument(ctx context.Context, p *product) error {
	p.record.Fragments = p.fragments.Len()
	if p.fragments.Len() == 0 {
		return nil
	}

	html := a.assembler.Assemble(p.summary.Title, p.fragments)
	htmlPath, err := a.archive.WriteDocument(p.dir, document.HTMLFile, html)
	if err != nil {
		return fmt.Errorf("product %s: %w", p.id, err)
	}

	pdfPath := filepath.Join(p.dir, document.PDFFile)
	if err := a.renderer.Render(ctx, html, pdfPath, a.config.Render); err != nil {
		return err
	}
	p.record.Document = true

	a.logger.Info("document written",
		zap.String("product_id", p.id),
		zap.String("html", htmlPath),
		zap.String("pdf", pdfPath),
		zap.Int("fragments", p.fragments.Len()))
	return nil
}

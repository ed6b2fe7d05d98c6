package ahjo

import (
	"context"
	"time"

	"ahjosync/internal/daterange"
	"ahjosync/internal/domain"
)

// CaseBatch streams cases over a date range, one remote query per
// chunk, chunks consumed in ascending time order. Usage mirrors
// bufio.Scanner: Next, Case, then Err after the loop.
type CaseBatch struct {
	client *Client
	lang   string
	chunks *daterange.Range
	buf    []domain.Case
	idx    int
	err    error
}

// Cases returns a lazy batched iterator over cases handled in
// [after, before), fetched in chunks of the given size.
func (c *Client) Cases(lang string, after, before time.Time, chunk time.Duration) *CaseBatch {
	return &CaseBatch{
		client: c,
		lang:   lang,
		chunks: daterange.New(after, before, chunk),
	}
}

// Next advances to the next case, issuing the next chunk query when
// the current buffer is exhausted. It returns false at the end of the
// range or on the first error.
func (b *CaseBatch) Next(ctx context.Context) bool {
	if b.err != nil {
		return false
	}
	b.idx++
	for b.idx >= len(b.buf) {
		if !b.chunks.Next() {
			return false
		}
		from, to := b.chunks.Interval()
		const op = "list cases"
		var page struct {
			Cases []wireCase `json:"cases"`
		}
		if err := b.client.get(ctx, op, "cases", b.lang, dateQuery(from, to), &page); err != nil {
			b.err = err
			return false
		}
		b.buf = b.buf[:0]
		for _, w := range page.Cases {
			c, err := w.toDomain(op)
			if err != nil {
				b.err = err
				return false
			}
			b.buf = append(b.buf, c)
		}
		b.idx = 0
	}
	return true
}

// Case returns the current record. Valid only after Next reported true.
func (b *CaseBatch) Case() domain.Case { return b.buf[b.idx] }

func (b *CaseBatch) Err() error { return b.err }

// DecisionmakerBatch streams decisionmakers over a date range the same
// way CaseBatch streams cases.
type DecisionmakerBatch struct {
	client *Client
	lang   string
	chunks *daterange.Range
	buf    []domain.Decisionmaker
	idx    int
	err    error
}

func (c *Client) Decisionmakers(lang string, after, before time.Time, chunk time.Duration) *DecisionmakerBatch {
	return &DecisionmakerBatch{
		client: c,
		lang:   lang,
		chunks: daterange.New(after, before, chunk),
	}
}

func (b *DecisionmakerBatch) Next(ctx context.Context) bool {
	if b.err != nil {
		return false
	}
	b.idx++
	for b.idx >= len(b.buf) {
		if !b.chunks.Next() {
			return false
		}
		from, to := b.chunks.Interval()
		const op = "list decisionmakers"
		var page struct {
			Decisionmakers []wireDecisionmaker `json:"decisionmakers"`
		}
		if err := b.client.get(ctx, op, "decisionmakers", b.lang, dateQuery(from, to), &page); err != nil {
			b.err = err
			return false
		}
		b.buf = b.buf[:0]
		for _, w := range page.Decisionmakers {
			dm, err := w.toDecisionmaker(op, b.lang)
			if err != nil {
				b.err = err
				return false
			}
			b.buf = append(b.buf, dm)
		}
		b.idx = 0
	}
	return true
}

func (b *DecisionmakerBatch) Decisionmaker() domain.Decisionmaker { return b.buf[b.idx] }

func (b *DecisionmakerBatch) Err() error { return b.err }

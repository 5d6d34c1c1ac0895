package service

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"lobsim/infra/outbox"
)

// Outbox kinds under run/<id>/.
const (
	KindTrade    = "trade"
	KindSnapshot = "snapshot"
	KindRecord   = "record"
	KindSummary  = "summary"
)

// Archive stores a result in the outbox as NEW entries: one per trade,
// book snapshot and agent record, plus the summary. Payloads are JSON.
func Archive(ob *outbox.Outbox, res *Result) (int, error) {
	items := make([]outbox.Item, 0, len(res.Trades)+len(res.Snapshots)+len(res.AgentRecords)+1)
	add := func(kind string, seq uint64, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return errors.Wrapf(err, "encode %s %d", kind, seq)
		}
		items = append(items, outbox.Item{Kind: kind, Seq: seq, Payload: b})
		return nil
	}

	for _, tr := range res.Trades {
		if err := add(KindTrade, tr.ID, tr); err != nil {
			return 0, err
		}
	}
	for _, snap := range res.Snapshots {
		if err := add(KindSnapshot, uint64(snap.Tick), snap); err != nil {
			return 0, err
		}
	}
	for i, rec := range res.AgentRecords {
		if err := add(KindRecord, uint64(i+1), rec); err != nil {
			return 0, err
		}
	}
	if err := add(KindSummary, 0, res.Summary); err != nil {
		return 0, err
	}

	if err := ob.PutBatch(res.RunID, items); err != nil {
		return 0, err
	}
	return len(items), nil
}

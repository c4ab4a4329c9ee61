package read

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/heremaps/here-data-sdk-go/pkg/model"
	"github.com/heremaps/here-data-sdk-go/pkg/olpclient"
	"github.com/heremaps/here-data-sdk-go/pkg/olperror"
)

const streamChunkSize = 8192

// StreamPartitions issues the unbounded partition-listing request and
// delivers each parsed partition to onPartition as its JSON object closes;
// the parsed partitions are never collected into a slice. The raw response
// body is not streamed: Client.CallAPI returns it whole, so the full listing
// is held in memory as bytes. A producer goroutine then feeds those bytes
// into an io.Pipe in chunks; the consumer walks the
// pipe with encoding/json.Decoder.Token(), a hand-rolled SAX-style state
// machine (wait-root-object -> wait-"partitions" -> in-array -> in-
// partition). The pipe's blocking Write/Read pair is this module's
// producer/consumer backpressure, the idiomatic-Go analogue of a condition
// variable between the two roles.
//
// Unknown top-level attributes are skipped rather than rejected; unknown
// fields within a partition object are tolerated by json.Unmarshal's normal
// rules. The union of partitions reaching onPartition is order-preserving
// with the source array.
func (r *PartitionsRepository) StreamPartitions(ctx context.Context, version int64, additionalFields []string, onPartition func(model.Partition)) error {
	pr, pw := io.Pipe()

	producerErrCh := make(chan error, 1)
	go func() {
		producerErrCh <- r.produceStream(ctx, version, additionalFields, pw)
	}()

	consumeErr := consumePartitionStream(pr, onPartition)
	producerErr := <-producerErrCh

	if consumeErr != nil {
		return consumeErr
	}
	return producerErr
}

func (r *PartitionsRepository) produceStream(ctx context.Context, version int64, additionalFields []string, w *io.PipeWriter) error {
	q := url.Values{}
	q.Set("version", strconv.FormatInt(version, 10))
	for _, f := range additionalFields {
		q.Add("additionalFields", f)
	}

	resp, err := r.Client.CallAPI(ctx, &olpclient.Request{
		Method: "GET",
		Path:   fmt.Sprintf("/layers/%s/partitions", r.Layer),
		Query:  q,
	})
	if err != nil {
		_ = w.CloseWithError(err)
		return err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		apiErr := olperror.New(olperror.KindForStatus(resp.Status), resp.Status, string(resp.Body))
		_ = w.CloseWithError(apiErr)
		return apiErr
	}

	for off := 0; off < len(resp.Body); off += streamChunkSize {
		end := off + streamChunkSize
		if end > len(resp.Body) {
			end = len(resp.Body)
		}
		if _, err := w.Write(resp.Body[off:end]); err != nil {
			return err
		}
	}
	return w.Close()
}

// consumePartitionStream walks root -> "partitions" -> array, decoding one
// partition object at a time; each decoded partition is handed to
// onPartition and not retained.
func consumePartitionStream(r io.Reader, onPartition func(model.Partition)) error {
	dec := json.NewDecoder(r)

	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return olperror.Wrap(olperror.KindUnknown, 0, err)
		}
		key, _ := keyTok.(string)
		if key != "partitions" {
			if err := skipValue(dec); err != nil {
				return err
			}
			continue
		}
		if err := expectDelim(dec, '['); err != nil {
			return err
		}
		for dec.More() {
			var p model.Partition
			if err := dec.Decode(&p); err != nil {
				return olperror.Wrap(olperror.KindUnknown, 0, err)
			}
			onPartition(p)
		}
		if _, err := dec.Token(); err != nil { // closing ']'
			return olperror.Wrap(olperror.KindUnknown, 0, err)
		}
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return olperror.Wrap(olperror.KindUnknown, 0, err)
	}
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return olperror.Wrap(olperror.KindUnknown, 0, err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != want {
		return olperror.InvalidArgument(fmt.Sprintf("expected %q, got %v", want, tok))
	}
	return nil
}

// skipValue consumes one complete JSON value (scalar, object or array) the
// decoder is positioned at, so an unrecognised top-level key doesn't derail
// the state machine.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return olperror.Wrap(olperror.KindUnknown, 0, err)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil
	}
	depth := 1
	for depth > 0 {
		t, err := dec.Token()
		if err != nil {
			return olperror.Wrap(olperror.KindUnknown, 0, err)
		}
		if d, ok := t.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	_ = delim
	return nil
}

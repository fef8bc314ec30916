package jobcentre

import (
	"bufio"
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/teranos/protohackd/internal/logger"
	"github.com/teranos/protohackd/internal/netio"
)

// Handler returns a netio.ConnHandler speaking the newline-delimited JSON
// request/response protocol against broker, using the connection's id as
// the worker identity for hold/release bookkeeping.
func Handler(broker *Broker) netio.ConnHandler {
	return func(ctx context.Context, conn *netio.Conn) {
		log := logger.Named("jobcentre").With(logger.FieldClient, conn.ID)
		w := bufio.NewWriter(conn)
		defer broker.ReleaseWorker(conn.ID)

		for {
			line, err := conn.ReadLine()
			if err != nil {
				return
			}
			resp := dispatch(ctx, broker, conn.ID, line, log)
			if resp == nil {
				continue
			}
			encoded, err := json.Marshal(resp)
			if err != nil {
				return
			}
			if _, err := w.Write(encoded); err != nil {
				return
			}
			if err := w.WriteByte('\n'); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}

func dispatch(ctx context.Context, broker *Broker, holder string, line []byte, log *zap.SugaredLogger) *response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return &response{Status: statusError, Error: "invalid JSON: " + err.Error()}
	}

	switch req.Request {
	case "put":
		id := broker.Put(req.Queue, req.Pri, req.Job)
		log.Debugw("put", logger.FieldQueue, req.Queue, logger.FieldJobID, id)
		return &response{Status: statusOK, ID: id}

	case "get":
		j, ok := broker.Get(ctx, req.Queues, req.Wait, holder)
		if !ok {
			return &response{Status: statusNoJob}
		}
		log.Debugw("get", logger.FieldQueue, j.queue, logger.FieldJobID, j.id)
		return &response{Status: statusOK, ID: j.id, Job: j.payload, Pri: j.pri, Queue: j.queue}

	case "delete":
		if !broker.Delete(req.ID) {
			return &response{Status: statusNoJob}
		}
		log.Debugw("delete", logger.FieldJobID, req.ID)
		return &response{Status: statusOK}

	case "abort":
		switch broker.Abort(req.ID, holder) {
		case abortOK:
			log.Debugw("abort", logger.FieldJobID, req.ID)
			return &response{Status: statusOK}
		case abortForbidden:
			return &response{Status: statusError, Error: "job not held by this worker"}
		default:
			return &response{Status: statusNoJob}
		}

	default:
		return &response{Status: statusError, Error: "unrecognised request type"}
	}
}

// Copyright 2015-2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package main

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/diffeo/go-counter/counter"
	"github.com/diffeo/go-counter/restdata"
)

var counterValue = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "diffeo",
		Subsystem: "counter",
		Name:      "value",
		Help:      "Last observed value of each counter",
	},
	[]string{"id"},
)

var counterOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "diffeo",
		Subsystem: "counter",
		Name:      "operations_total",
		Help:      "Counter operations by action and result status",
	},
	[]string{"action", "status"},
)

var httpRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "diffeo",
		Subsystem: "counter",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method and response code",
	},
	[]string{"method", "code"},
)

func init() {
	prometheus.MustRegister(counterValue, counterOperations, httpRequests)
}

// observed wraps a counter service and records every operation.
type observed struct {
	counter.Counters
}

func observe(action, id string, rec counter.Record, err error) {
	status := "ok"
	if err != nil {
		status = strconv.Itoa(restdata.Status(err))
	} else if rec.Exists() {
		counterValue.WithLabelValues(id).Set(float64(rec.Value))
	}
	counterOperations.WithLabelValues(action, status).Inc()
}

func (o observed) Counter(ctx context.Context, id string) (counter.Record, error) {
	rec, err := o.Counters.Counter(ctx, id)
	observe("get", id, rec, err)
	return rec, err
}

func (o observed) Apply(ctx context.Context, id string, op counter.Operation, user string) (counter.Record, error) {
	rec, err := o.Counters.Apply(ctx, id, op, user)
	observe(op.Action.String(), id, rec, err)
	return rec, err
}

func (o observed) Delete(ctx context.Context, id string) error {
	err := o.Counters.Delete(ctx, id)
	observe("delete", id, counter.Record{}, err)
	if err == nil {
		counterValue.DeleteLabelValues(id)
	}
	return err
}

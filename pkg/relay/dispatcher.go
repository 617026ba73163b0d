package relay

import (
	"context"
	"sync"

	"github.com/kalifun/tracilink/errors"
	"github.com/kalifun/tracilink/pkg/converter"
	"github.com/kalifun/tracilink/pkg/core"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/sirupsen/logrus"
)

// DispatchFunc performs a dispatch request, usually
// bridge.VehicleFacade.DispatchTaxi.
type DispatchFunc func(ctx context.Context, vehicleID string, reservationIDs []string) error

// Dispatcher subscribes to a dispatch topic and forwards every valid request.
type Dispatcher struct {
	id        string
	transport core.Publisher
	conv      converter.Converter
	topic     string
	dispatch  DispatchFunc
	logger    *logrus.Entry

	mu  sync.Mutex
	sub core.Subscription
}

func NewDispatcher(id string, transport core.Publisher, conv converter.Converter, topic string, dispatch DispatchFunc) *Dispatcher {
	return &Dispatcher{
		id:        id,
		transport: transport,
		conv:      conv,
		topic:     topic,
		dispatch:  dispatch,
		logger:    logrus.WithFields(logrus.Fields{"component": id, "topic": topic}),
	}
}

func (d *Dispatcher) ID() string {
	return d.id
}

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sub != nil {
		return errors.TransportAlreadyRunning.Args(d.id)
	}
	sub, err := d.transport.Subscribe(ctx, d.topic, d.handle)
	if err != nil {
		return err
	}
	d.sub = sub
	d.logger.Info("Listening for dispatch requests")
	return nil
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sub == nil {
		return errors.TransportNotRunning.Args(d.id)
	}
	err := d.sub.Unsubscribe(ctx)
	d.sub = nil
	if err != nil {
		// the transport may already be gone
		d.logger.WithError(err).Debug("Unsubscribe failed")
	}
	return nil
}

func (d *Dispatcher) handle(ctx context.Context, msg *core.Message) error {
	meta := make(map[string]interface{}, len(msg.Meta))
	for k, v := range msg.Meta {
		meta[k] = v
	}
	req, err := d.conv.ToDispatch(ctx, &types.TransportMessage{
		Topic:   msg.Topic,
		Payload: msg.Payload,
		Meta:    meta,
	})
	if err != nil {
		d.logger.WithError(err).Warn("Rejected dispatch request")
		return err
	}

	if err := d.dispatch(ctx, req.VehicleID, req.ReservationIDs); err != nil {
		d.logger.WithError(err).WithField("vehicle_id", req.VehicleID).Warn("Dispatch failed")
		return err
	}
	d.logger.WithFields(logrus.Fields{
		"vehicle_id":   req.VehicleID,
		"reservations": req.ReservationIDs,
	}).Info("Dispatch forwarded")
	return nil
}

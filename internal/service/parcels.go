package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
	"github.com/iliyamo/segment-reservation/internal/queue"
	"github.com/iliyamo/segment-reservation/internal/utils"
)

// ParcelRequest registers a parcel. OTP is generated when empty.
type ParcelRequest struct {
	Code   string  `json:"code" validate:"required,max=64"`
	OTP    string  `json:"otp" validate:"omitempty,numeric,len=6"`
	TripID *uint64 `json:"trip_id"`
}

// ParcelService is the parcel state machine:
//
//	CREATED -> IN_TRANSIT -> DELIVERED | FAILED
//
// Delivery is gated by the parcel's OTP. A wrong OTP changes nothing.
type ParcelService struct {
	*base
}

// Create stores a new CREATED parcel and returns it with its plain OTP.
// The OTP is only ever returned here.
func (s *ParcelService) Create(ctx context.Context, rc domain.RequestContext, req ParcelRequest) (model.Parcel, string, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return model.Parcel{}, "", fmt.Errorf("%w: parcel code is required", domain.ErrInvalidRequest)
	}
	otp := req.OTP
	if otp == "" {
		var err error
		if otp, err = utils.GenerateOTP(); err != nil {
			return model.Parcel{}, "", err
		}
	}
	hash, err := utils.HashOTP(otp, s.OtpCost)
	if err != nil {
		return model.Parcel{}, "", err
	}
	var p model.Parcel
	err = s.atomic(ctx, func(tx Tx, _ *[]queue.Event) error {
		if req.TripID != nil {
			if _, err := tx.Trip(ctx, *req.TripID); err != nil {
				return err
			}
		}
		now := s.Clock.Now()
		p = model.Parcel{
			Code:      code,
			TripID:    req.TripID,
			Status:    model.ParcelCreated,
			OtpHash:   hash,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.InsertParcel(ctx, &p)
	})
	if err != nil {
		return model.Parcel{}, "", err
	}
	s.Log.Info("PARCEL", fmt.Sprintf("parcel %s created by user %d", p.Code, rc.UserID))
	return p, otp, nil
}

// MarkInTransit loads a CREATED parcel onto a trip.
func (s *ParcelService) MarkInTransit(ctx context.Context, rc domain.RequestContext, code string, tripID uint64) (model.Parcel, error) {
	return s.transition(ctx, code, model.ParcelCreated, func(tx Tx, p *model.Parcel, events *[]queue.Event) error {
		if tripID != 0 {
			if _, err := tx.Trip(ctx, tripID); err != nil {
				return err
			}
			p.TripID = &tripID
		}
		if p.TripID == nil {
			return fmt.Errorf("%w: parcel %s has no trip", domain.ErrInvalidRequest, p.Code)
		}
		p.Status = model.ParcelInTransit
		*events = append(*events, s.parcelEvent(queue.ParcelInTransit, rc.UserID, *p))
		return nil
	})
}

// Deliver releases an IN_TRANSIT parcel against its OTP. The status is
// checked before the OTP, so a delivered parcel reports an invalid
// transition whatever code is presented.
func (s *ParcelService) Deliver(ctx context.Context, rc domain.RequestContext, code, otp, proofURL string) (model.Parcel, error) {
	var cur model.Parcel
	if err := s.read(ctx, func(tx Tx) (err error) {
		cur, err = tx.Parcel(ctx, code)
		return err
	}); err != nil {
		return model.Parcel{}, err
	}
	if cur.Status != model.ParcelInTransit {
		return model.Parcel{}, fmt.Errorf("%w: parcel %s is %s", domain.ErrInvalidStateTransition, cur.Code, cur.Status)
	}
	ok, err := utils.VerifyOTP(cur.OtpHash, otp)
	if err != nil {
		return model.Parcel{}, err
	}
	if !ok {
		ev := s.parcelEvent(queue.ParcelOtpMismatch, rc.UserID, cur)
		s.Notifier.Publish(ev)
		s.Log.Warn("PARCEL", fmt.Sprintf("otp mismatch on parcel %s by user %d", cur.Code, rc.UserID))
		return model.Parcel{}, fmt.Errorf("%w: parcel %s", domain.ErrOtpMismatch, cur.Code)
	}
	// The CAS on IN_TRANSIT makes a concurrent second delivery lose.
	return s.transition(ctx, code, model.ParcelInTransit, func(_ Tx, p *model.Parcel, events *[]queue.Event) error {
		now := s.Clock.Now()
		p.Status = model.ParcelDelivered
		p.ProofURL = proofURL
		p.DeliveredAt = &now
		*events = append(*events, s.parcelEvent(queue.ParcelDelivered, rc.UserID, *p))
		return nil
	})
}

// MarkFailed ends an IN_TRANSIT parcel as FAILED.
func (s *ParcelService) MarkFailed(ctx context.Context, rc domain.RequestContext, code, reason string) (model.Parcel, error) {
	return s.transition(ctx, code, model.ParcelInTransit, func(_ Tx, p *model.Parcel, events *[]queue.Event) error {
		p.Status = model.ParcelFailed
		p.FailureReason = reason
		ev := s.parcelEvent(queue.ParcelFailed, rc.UserID, *p)
		ev.Detail = reason
		*events = append(*events, ev)
		return nil
	})
}

// Get returns a parcel by code.
func (s *ParcelService) Get(ctx context.Context, code string) (model.Parcel, error) {
	var p model.Parcel
	err := s.read(ctx, func(tx Tx) (err error) {
		p, err = tx.Parcel(ctx, code)
		return err
	})
	return p, err
}

func (s *ParcelService) transition(ctx context.Context, code string, from model.ParcelStatus, apply func(tx Tx, p *model.Parcel, events *[]queue.Event) error) (model.Parcel, error) {
	var out model.Parcel
	err := s.atomic(ctx, func(tx Tx, events *[]queue.Event) error {
		p, err := tx.Parcel(ctx, code)
		if err != nil {
			return err
		}
		if p.Status != from {
			return fmt.Errorf("%w: parcel %s is %s", domain.ErrInvalidStateTransition, p.Code, p.Status)
		}
		if err := apply(tx, &p, events); err != nil {
			return err
		}
		p.UpdatedAt = s.Clock.Now()
		ok, err := tx.UpdateParcel(ctx, p, from)
		if err != nil {
			return err
		}
		if !ok {
			return lost("parcel", p.Code)
		}
		out = p
		return nil
	})
	if err != nil {
		return model.Parcel{}, err
	}
	s.Log.Info("PARCEL", fmt.Sprintf("parcel %s %s", out.Code, out.Status))
	return out, nil
}

func (s *ParcelService) parcelEvent(typ string, actor uint64, p model.Parcel) queue.Event {
	ev := s.event(typ, actor)
	ev.ParcelCode = p.Code
	ev.Status = string(p.Status)
	if p.TripID != nil {
		ev.TripID = *p.TripID
	}
	return ev
}

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateMemberRequest struct {
	Name             string
	Email            string
	SubscriptionType string
	Status           Status
	StartDate        *time.Time
}

type Service interface {
	Create(context.Context, CreateMemberRequest) (Member, error)
	GetByID(context.Context, snowflake.ID) (Member, error)
	ListActive(context.Context) ([]*Member, error)
}

var (
	ErrNotFound            = errors.New("member_not_found")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidSubscription = errors.New("invalid_subscription_type")
)

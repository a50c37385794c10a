package ddbsdk

import (
	"context"
	"errors"
	"fmt"

	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

// maxTxActions is the TransactWriteItems limit on actions per call.
const maxTxActions = 100

var ErrTooManyActions = errors.New("ddbq: too many transaction actions")

// Txer commits puts, updates, deletes and condition checks atomically.
type Txer interface {
	AddAction(a ...Action) error
	Commit(ctx context.Context) error
}

func NewTxer(ddb AWSDynamoClientV2, opts ...TxOption) *txer {
	tx := &txer{
		awsddb: ddb,
		log:    zerolog.Nop(),
		keys:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(&tx.opts)
	}
	return tx
}

// NewTx creates a transaction sending through c.
//
// Options: [WithIdempotencyToken]
func (c *Client) NewTx(opts ...TxOption) Txer {
	tx := NewTxer(c.awsddb, opts...)
	tx.log = c.log
	return tx
}

type txer struct {
	awsddb AWSDynamoClientV2
	log    zerolog.Logger
	opts   txOpts

	// errors from AddAction are returned again by Commit, so callers may
	// skip checking each AddAction.
	errs    []error
	actions []Action
	// keys holds table and primary key of every staged action. DynamoDB
	// allows one action per item in a transaction.
	keys map[string]bool
}

var _ Txer = &txer{}

func (tx *txer) addError(err error) error {
	tx.errs = append(tx.errs, err)
	return err
}

// AddAction stages actions for the commit, in order.
func (tx *txer) AddAction(actions ...Action) error {
	for _, a := range actions {
		key, err := a.PrimaryKey()
		if err != nil {
			return tx.addError(fmt.Errorf("failed to get primary key: %w", err))
		}
		id := *a.TableName() + "/" + key.String()
		if tx.keys[id] {
			return tx.addError(fmt.Errorf("an action already exists in table %q for primary key %s", *a.TableName(), key))
		}
		if len(tx.actions) == maxTxActions {
			return tx.addError(fmt.Errorf("%w: limit is %d", ErrTooManyActions, maxTxActions))
		}
		tx.keys[id] = true
		tx.actions = append(tx.actions, a)
	}
	return nil
}

// Commit writes the staged actions. A single action is sent as a plain
// write to skip the transaction overhead. Failed conditions are reported as
// ErrConditionFailed.
func (tx *txer) Commit(ctx context.Context) error {
	if len(tx.errs) > 0 {
		return errors.Join(tx.errs...)
	}
	switch len(tx.actions) {
	case 0:
		return nil
	case 1:
		return tx.commitSingle(ctx, tx.actions[0])
	}

	items := make([]types.TransactWriteItem, 0, len(tx.actions))
	for _, a := range tx.actions {
		twi, err := a.ToTransactWriteItem()
		if err != nil {
			return fmt.Errorf("failed to convert %T to transact write item: %w", a, err)
		}
		items = append(items, twi)
	}
	params := &dynamodbv2.TransactWriteItemsInput{
		TransactItems: items,
	}
	if tx.opts.idempotencyToken != "" {
		params.ClientRequestToken = ptr(tx.opts.idempotencyToken)
	}
	tx.log.Debug().Int("actions", len(items)).Msg("transact write items")
	if _, err := tx.awsddb.TransactWriteItems(ctx, params); err != nil {
		return fmt.Errorf("failed to transact write items: %w", conditionFailed(err))
	}
	return nil
}

func (tx *txer) commitSingle(ctx context.Context, action Action) error {
	switch a := action.(type) {
	case *Put:
		in, err := a.Build()
		if err != nil {
			return err
		}
		_, err = tx.awsddb.PutItem(ctx, in)
		if err != nil {
			return fmt.Errorf("failed to put item: %w", conditionFailed(err))
		}
	case *Update:
		in, err := a.Build()
		if err != nil {
			return err
		}
		_, err = tx.awsddb.UpdateItem(ctx, in)
		if err != nil {
			return fmt.Errorf("failed to update item: %w", conditionFailed(err))
		}
	case *Delete:
		in, err := a.Build()
		if err != nil {
			return err
		}
		_, err = tx.awsddb.DeleteItem(ctx, in)
		if err != nil {
			return fmt.Errorf("failed to delete item: %w", conditionFailed(err))
		}
	default:
		// A lone condition check has no plain counterpart.
		twi, err := a.ToTransactWriteItem()
		if err != nil {
			return err
		}
		params := &dynamodbv2.TransactWriteItemsInput{
			TransactItems: []types.TransactWriteItem{twi},
		}
		if tx.opts.idempotencyToken != "" {
			params.ClientRequestToken = ptr(tx.opts.idempotencyToken)
		}
		if _, err := tx.awsddb.TransactWriteItems(ctx, params); err != nil {
			return fmt.Errorf("failed to transact write items: %w", conditionFailed(err))
		}
	}
	return nil
}

type TxOption func(*txOpts)

type txOpts struct {
	idempotencyToken string
}

// IdempotencyTokens last for 10 minutes according to AWS documentation.
// If used after that, the request will be treated as new.
// Therefore, use with care.
// https://docs.aws.amazon.com/amazondynamodb/latest/APIReference/API_TransactWriteItems.html
func WithIdempotencyToken(token string) TxOption {
	return func(opts *txOpts) {
		opts.idempotencyToken = token
	}
}

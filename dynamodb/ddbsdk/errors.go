package ddbsdk

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	// ErrNoKeyCondition is returned by a query whose predicates do not
	// constrain any key of the queried table or index. Use a scan instead.
	ErrNoKeyCondition = errors.New("ddbq: query has no key condition")

	// ErrConditionFailed wraps the ConditionalCheckFailedException returned
	// by a conditional write.
	ErrConditionFailed = errors.New("ddbq: condition failed")

	ErrNotFound = errors.New("ddbq: item not found")

	// ErrNameCollision is returned when a placeholder of one expression,
	// such as a projection or update, means something else in the
	// predicates compiled into the same request.
	ErrNameCollision = errors.New("ddbq: expression attribute name collision")
)

// conditionFailed marks failed conditions of single writes and of
// cancelled transactions with ErrConditionFailed.
func conditionFailed(err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("%w: %w", ErrConditionFailed, err)
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if aws.ToString(r.Code) == "ConditionalCheckFailed" {
				return fmt.Errorf("%w: %w", ErrConditionFailed, err)
			}
		}
	}
	return err
}

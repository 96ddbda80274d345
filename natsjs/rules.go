package natsjs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/arloliu/sublease/types"
)

// DefaultRuleName is the rule every subscription starts with; it admits all
// message subjects of the topic.
const DefaultRuleName = "$Default"

// parkedToken is the reserved subject token a consumer is parked on when all
// rules are removed. Nothing publishes beneath it, so delivery stops without
// deleting the consumer.
const parkedToken = "_parked_"

// Compile-time assertion: subscription receivers manage rules.
var _ types.RuleManager = (*receiver)(nil)

// AddRule installs a named subject filter on the subscription.
//
// Filters are relative to the topic's message namespace: ">" admits every
// message, "vip.>" admits messages published under the vip session prefix.
// Returns ErrRuleExists when the name is already in use and
// types.ErrRulesNotSupported on receivers with fixed filters (dead-letter
// and session receivers).
func (r *receiver) AddRule(ctx context.Context, name, subjectFilter string) error {
	if r.closed.Load() {
		return ErrReceiverClosed
	}
	if strings.TrimSpace(name) == "" {
		return errors.New("natsjs: rule name is empty")
	}
	if strings.TrimSpace(subjectFilter) == "" {
		subjectFilter = ">"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rules == nil {
		return types.ErrRulesNotSupported
	}
	if _, exists := r.rules[name]; exists {
		return fmt.Errorf("%w: %s", ErrRuleExists, name)
	}

	r.rules[name] = subjectFilter
	if err := r.reconcileLocked(ctx); err != nil {
		delete(r.rules, name)
		return err
	}

	return nil
}

// RemoveRule removes a previously installed rule by name.
//
// Removing every rule (including $Default) parks the consumer on a reserved
// never-published subject, stopping delivery without deleting the consumer.
func (r *receiver) RemoveRule(ctx context.Context, name string) error {
	if r.closed.Load() {
		return ErrReceiverClosed
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rules == nil {
		return types.ErrRulesNotSupported
	}
	filter, exists := r.rules[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, name)
	}

	delete(r.rules, name)
	if err := r.reconcileLocked(ctx); err != nil {
		r.rules[name] = filter
		return err
	}

	return nil
}

// Rules lists the rules currently applied, sorted by name.
func (r *receiver) Rules(_ context.Context) ([]types.Rule, error) {
	if r.closed.Load() {
		return nil, ErrReceiverClosed
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rules == nil {
		return nil, types.ErrRulesNotSupported
	}

	out := make([]types.Rule, 0, len(r.rules))
	for name, filter := range r.rules {
		out = append(out, types.Rule{Name: name, SubjectFilter: filter})
	}
	slices.SortFunc(out, func(a, b types.Rule) int {
		return strings.Compare(a.Name, b.Name)
	})

	return out, nil
}

// effectiveFilters translates the rule set into the consumer's deduped,
// sorted FilterSubjects.
func (r *receiver) effectiveFilters() []string {
	if r.rules == nil {
		return []string{r.filterSubject()}
	}
	if len(r.rules) == 0 {
		return []string{r.root + "." + parkedToken}
	}

	seen := make(map[string]struct{}, len(r.rules))
	for _, filter := range r.rules {
		// A catch-all rule subsumes every other filter; listing both would
		// give the consumer overlapping filter subjects, which JetStream
		// rejects.
		if filter == ">" {
			return []string{messageFilter(r.root)}
		}
		seen[r.root+".msg."+filter] = struct{}{}
	}

	filters := make([]string, 0, len(seen))
	for subject := range seen {
		filters = append(filters, subject)
	}
	slices.Sort(filters)

	return filters
}

// filterSubject is the fixed filter of dead-letter and session receivers.
func (r *receiver) filterSubject() string {
	if r.params.deadLetter {
		return r.dlqSubject
	}
	if r.params.sessionID != "" {
		return messageSubject(r.root, r.params.sessionID)
	}

	return messageFilter(r.root)
}

// reconcileLocked applies the current rule set to the consumer. No-op when
// the effective subject set is unchanged. Caller holds r.mu.
func (r *receiver) reconcileLocked(ctx context.Context) error {
	filters := r.effectiveFilters()
	if slices.Equal(filters, r.appliedFilters) {
		return nil
	}

	consumer, err := r.stream.CreateOrUpdateConsumer(ctx, r.consumerConfig(filters))
	if err != nil {
		return fmt.Errorf("failed to apply rules to consumer %s: %w", r.consumerName, err)
	}

	r.consumer = consumer
	r.appliedFilters = filters
	r.logger.Debug("subscription rules applied", "consumer", r.consumerName, "filters", filters)

	return nil
}

/*
Package filter implements the chain of predicates shared by the views of a
model.

Every view owns one Filter. A Filter may name a parent, so the filters form a
forest whose edges always point at filters registered earlier. When a view
asks for its visible items, the chain skips that view's own filter and all of
its ancestors, and hides an item if any remaining predicate matches it.

Removing a filter splices the chain: filters that named the removed one as
parent are re-pointed at its parent.
*/
package filter

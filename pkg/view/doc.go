/*
Package view provides filtered projections of a model's item tree.

A View never copies items. Roots is recomputed on every call from the live
tree and the shared filter chain, so a view cannot serve a stale result after
a mutation. Each view subscribes to the model and forwards every applied event
to its OnChange callbacks; those callbacks run on the model executor and must
not wait on model futures.

Five kinds exist: all roots (optionally restricted to some contributors), one
contributor, one group, one service and an explicit list of items.
*/
package view

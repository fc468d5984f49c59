/*
Package registry holds the ordered list of contributors known to a model.

The registry is an explicit object handed to the model at construction; the
plugin-loading layer mutates it with Add, Insert, Replace and Remove. There is
no package-level state.
*/
package registry

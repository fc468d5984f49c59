/*
Package ports defines the driven ports (interfaces) of the Arbor tree model.

These interfaces decouple the model from the providers that decide what
services exist and from the transports that deliver change events.

# Key Interfaces

  - Contributor: Supplies services and their descriptors.
  - Grouping, Ordered, Lazy, Resolver: Optional contributor capabilities,
    collapsed into a Capabilities tag set by CapabilitiesOf.
  - Provider: Implemented by service values that host children of their own.
  - EventSource: Delivers change events asynchronously (channels, Redis, ...).
*/
package ports

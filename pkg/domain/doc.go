/*
Package domain contains the core types shared by the Arbor tree model.

It defines the values contributors hand to the model, the presentation
descriptors attached to tree items, the change events that drive incremental
updates, and the lifecycle hooks used for observability. This package is kept
free of I/O and concurrency concerns, following Hexagonal Architecture
principles.

# Key Entities

  - Value: A domain object (service or grouping key) identified by its ID.
  - Descriptor: Presentation data (text, icon, actions) supplied by a contributor.
  - Event: A change notification (Added, Removed, Changed, ...) applied in order.
  - LoadState: Lazy-load progress of an item's children.
*/
package domain

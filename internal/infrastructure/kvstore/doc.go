// Package kvstore opens the embedded Badger database used by the badger
// storage driver and routes Badger's own logging into the service logger.
// Badger's informational chatter is demoted to debug level.
package kvstore

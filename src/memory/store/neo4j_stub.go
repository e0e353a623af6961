//go:build !neo4j

package store

// OpenNeo4jGraphStore is only available when built with -tags neo4j;
// without the tag the composition root falls back to the Postgres or
// in-memory graph store.
func OpenNeo4jGraphStore(uri, user, password, database string) (*Neo4jGraphStore, error) {
	return nil, ErrNeo4jUnavailable
}

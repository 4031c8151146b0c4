// Package recording persists captured HTTP exchanges as flat JSON files and
// looks them up again for replay.
//
// Layout:
//
//	{root}/{folder}/{url path}/{METHOD}_{qp|nq}_{bp|nb}_{YYYYMMDD_HHMMSS_mmm}.json
//
// The file name prefix is the identity key of a recording: method, whether
// the request carried a query string and whether it carried a body. The
// timestamp suffix sorts lexicographically in capture order, so the newest
// file of a key is always the last one in name order.
//
// Each file holds:
//
//	{"httpMethod": "GET", "uri": "/api/users?page=2", "request": null,
//	 "httpStatus": 200, "response": {"users": []}}
//
// Bodies are stored as decoded JSON when they parse, as a raw string
// otherwise. Duplicate detection compares uri, request and response by deep
// equality of the decoded values and is serialized per directory.
package recording

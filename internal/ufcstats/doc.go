// Package ufcstats knows the layout of ufcstats.com: where listings and detail
// pages live and how to turn their markup into dataset records.
//
// Extractors fail loudly with ErrNotFound when required markup is missing. A
// listing table without rows is not an error; it yields no ids.
package ufcstats

// Package gtest contains helpers shared by tests across the module.
package gtest

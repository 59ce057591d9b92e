package model

import "testing"

func TestPool_IdentityEquality(t *testing.T) {
	a := NewPool("phones", "emulator-5554")
	b := NewPool("phones", "emulator-5554")

	m := map[*Pool]int{a: 1}
	if _, ok := m[b]; ok {
		t.Error("pools with equal fields must still be distinct map keys")
	}
	if a.String() != "phones" {
		t.Errorf("String() = %q, want %q", a.String(), "phones")
	}

	var nilPool *Pool
	if nilPool.String() != "<nil>" {
		t.Errorf("nil String() = %q, want %q", nilPool.String(), "<nil>")
	}
}

func TestTestCase_StableAcrossRetries(t *testing.T) {
	first := NewTestCase("com.example.LoginTest", "testValid")
	retry := NewTestCase("com.example.LoginTest", "testValid")

	if first != retry {
		t.Error("identical test cases must compare equal")
	}
	if got, want := first.String(), "com.example.LoginTest#testValid"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

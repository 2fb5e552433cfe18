package cache

import "testing"

func TestLocalMissCache(t *testing.T) {
	c, err := NewLocalMissCache(1000)
	if err != nil {
		t.Fatalf("NewLocalMissCache: %v", err)
	}
	defer c.Close()

	if c.IsMissing("abc") {
		t.Error("fresh cache reports abc as missing")
	}

	c.MarkMissing("abc")
	c.Wait()
	if !c.IsMissing("abc") {
		t.Error("abc not marked missing after MarkMissing")
	}

	c.Forget("abc")
	c.Wait()
	if c.IsMissing("abc") {
		t.Error("abc still missing after Forget")
	}
}

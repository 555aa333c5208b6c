package queue

import (
	"container/list"
	"testing"
)

func TestPush(t *testing.T) {
	q := NewQueue[int](3)

	a, b, c := q.Push(3), q.Push(4), q.Push(5)

	if !(a && b && c) {
		t.Fatal("Could not Push three elements")
	}
}

func TestPushLimit(t *testing.T) {
	q := NewQueue[int](2)

	a, b, c := q.Push(3), q.Push(4), q.Push(5)

	if !a || !b || c {
		t.Fatal("Could Push last element:", a, b, c)
	}
}

func TestPopEmpty(t *testing.T) {
	q := NewQueue[int](10)

	if _, ok := q.Pop(); ok {
		t.Fatal("Could Pop from empty queue")
	}
}

func TestPop(t *testing.T) {
	q := NewQueue[int](10)

	q.Push(1)
	q.Push(2)
	q.Push(3)

	a, _ := q.Pop()
	b, _ := q.Pop()
	c, _ := q.Pop()

	if a != 1 || b != 2 || c != 3 {
		t.Fatal("Bad contents:", a, b, c)
	}

	if _, ok := q.Pop(); ok {
		t.Fatal("Yields element past end")
	}
}

func TestLen(t *testing.T) {
	q := NewQueue[int](10)
	q.Push(2)
	q.Push(3)
	if q.Len() != 2 {
		t.Fatal("Wrong length", q.Len())
	}
}

func TestLen2(t *testing.T) {
	q := NewQueue[int](3)
	q.Push(2)
	q.Push(3)
	q.Push(4)
	q.Pop()
	q.Pop()
	q.Push(5)
	if q.Len() != 2 {
		t.Fatal("Wrong length", q.Len())
	}
	q.Pop()
	if v, _ := q.Pop(); v != 5 {
		t.Fatal("Unexpected value")
	}
}

func TestPeek(t *testing.T) {
	q := NewQueue[[]byte](10)
	q.Push([]byte("x"))

	if v, ok := q.Peek(); !ok || string(v) != "x" {
		t.Fatal("Wrong element:", v)
	}
	if q.Len() != 1 {
		t.Fatal("Peek removed the element")
	}
}

// Benches time for Pushing, then Popping 10 elements from a long queue
func BenchmarkQueue(b *testing.B) {
	q := NewQueue[int](1000)

	for i := 0; i < b.N; i++ {
		for j := 0; j < 10; j++ {
			if !q.Push(j) {
				b.Fatal("couldn't Push")
			}
		}
		for j := 0; j < 10; j++ {
			if _, ok := q.Pop(); !ok {
				b.Fatal("got nothing", i, j)
			}
		}
	}
}

// Compare with linked list performance
func BenchmarkQueueLinkedList(b *testing.B) {
	l := list.New()

	for i := 0; i < b.N; i++ {
		for j := 0; j < 10; j++ {
			if nil == l.PushBack(i) {
				b.Fatal("couldn't Push")
			}
		}
		for j := 0; j < 10; j++ {
			if nil == l.Remove(l.Front()) {
				b.Fatal("got nil", i, j)
			}
		}
	}
}

// Compare with chans
func BenchmarkQueueChan(b *testing.B) {
	c := make(chan int, 1000)

	for i := 0; i < b.N; i++ {
		for j := 0; j < 10; j++ {
			c <- i
		}
		for j := 0; j < 10; j++ {
			if -1 == <-c {
				b.Fatal("unexpected value")
			}
		}
	}
}
